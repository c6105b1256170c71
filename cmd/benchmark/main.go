// Load-test tool for driving synthetic loan requests through Kestrel.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -requests 1000
//
// This tool:
//   1. Generates synthetic borrowers with varied loan amounts
//   2. Sends each request to POST /fraud/evaluate
//   3. Tallies risk levels, triggered rules, and latency
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// LoanScenario is one synthetic loan request with the profile that produced it.
type LoanScenario struct {
	UserID        string
	WalletAddress string
	Amount        string
	AssetSymbol   string
	Profile       string // "clean", "high_value", "spammer"
}

// EvaluateRequest matches the Kestrel API request format.
type EvaluateRequest struct {
	UserID           string `json:"userId"`
	WalletAddress    string `json:"walletAddress"`
	Amount           string `json:"amount"`
	AssetSymbol      string `json:"assetSymbol,omitempty"`
	CollateralAmount string `json:"collateralAmount,omitempty"`
}

// EvaluateResponse matches the Kestrel API response format.
type EvaluateResponse struct {
	Assessment struct {
		ID             string   `json:"id"`
		FraudRiskLevel string   `json:"fraudRiskLevel"`
		FraudRiskScore float64  `json:"fraudRiskScore"`
		TriggeredRules []string `json:"triggeredRules"`
	} `json:"assessment"`
	Metadata struct {
		TotalMs int64 `json:"totalMs"`
	} `json:"metadata"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64

	LowCount    int64
	MediumCount int64
	HighCount   int64

	mu         sync.Mutex
	ruleCounts map[string]int64
	latencies  []int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	requests := flag.Int("requests", 1000, "Number of loan requests to send")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	borrowers := flag.Int("borrowers", 100, "Number of distinct synthetic borrowers")
	riskyRate := flag.Float64("risky", 0.2, "Fraction of requests with risky profiles (0.0-1.0)")
	seed := flag.Int64("seed", 42, "Random seed for scenario generation")
	verbose := flag.Bool("verbose", false, "Print each request result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            KESTREL BENCHMARK - Loan Risk Evaluation           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Requests:    %d\n", *requests)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Borrowers:   %d\n", *borrowers)
	fmt.Printf("Risky Rate:  %.2f\n", *riskyRate)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	scenarios := generateScenarios(*requests, *borrowers, *riskyRate, *seed)
	fmt.Printf("✓ Generated %d loan scenarios\n", len(scenarios))

	riskyCount := 0
	for _, s := range scenarios {
		if s.Profile != "clean" {
			riskyCount++
		}
	}
	fmt.Printf("  - Clean:  %d (%.2f%%)\n", len(scenarios)-riskyCount, 100*float64(len(scenarios)-riskyCount)/float64(len(scenarios)))
	fmt.Printf("  - Risky:  %d (%.2f%%)\n", riskyCount, 100*float64(riskyCount)/float64(len(scenarios)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(scenarios, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// generateScenarios builds a mixed workload. Clean borrowers ask for small
// amounts spread across many wallets. Risky profiles either request high
// amounts with no history or hammer the same wallet to trip velocity limits.
func generateScenarios(count, borrowers int, riskyRate float64, seed int64) []LoanScenario {
	rng := rand.New(rand.NewSource(seed))
	scenarios := make([]LoanScenario, 0, count)

	for i := 0; i < count; i++ {
		borrower := rng.Intn(borrowers)
		userID := fmt.Sprintf("bench-user-%04d", borrower)
		wallet := fmt.Sprintf("0xbench%058d", borrower)

		roll := rng.Float64()
		switch {
		case roll < riskyRate/2:
			// High-value first-time borrower
			scenarios = append(scenarios, LoanScenario{
				UserID:        userID,
				WalletAddress: wallet,
				Amount:        fmt.Sprintf("%d", 5001+rng.Intn(20000)),
				AssetSymbol:   "C2FLR",
				Profile:       "high_value",
			})
		case roll < riskyRate:
			// Velocity abuser: always the same wallet so the request
			// counter accumulates across the run
			scenarios = append(scenarios, LoanScenario{
				UserID:        "bench-spammer",
				WalletAddress: fmt.Sprintf("0xspam%059d", 0),
				Amount:        fmt.Sprintf("%d", 100+rng.Intn(900)),
				AssetSymbol:   "C2FLR",
				Profile:       "spammer",
			})
		default:
			scenarios = append(scenarios, LoanScenario{
				UserID:        userID,
				WalletAddress: wallet,
				Amount:        fmt.Sprintf("%d", 50+rng.Intn(2000)),
				AssetSymbol:   "C2FLR",
				Profile:       "clean",
			})
		}
	}

	return scenarios
}

func runBenchmark(scenarios []LoanScenario, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{
		ruleCounts: make(map[string]int64),
		latencies:  make([]int64, 0, len(scenarios)),
	}

	work := make(chan LoanScenario, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 30 * time.Second}

			for sc := range work {
				start := time.Now()
				result, err := evaluateLoan(client, baseURL, sc)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", sc.UserID, err)
					}
					continue
				}

				switch result.Assessment.FraudRiskLevel {
				case "LOW":
					atomic.AddInt64(&metrics.LowCount, 1)
				case "MEDIUM":
					atomic.AddInt64(&metrics.MediumCount, 1)
				case "HIGH":
					atomic.AddInt64(&metrics.HighCount, 1)
				}

				metrics.mu.Lock()
				metrics.latencies = append(metrics.latencies, elapsed)
				for _, rule := range result.Assessment.TriggeredRules {
					metrics.ruleCounts[rule]++
				}
				metrics.mu.Unlock()

				if verbose {
					fmt.Printf("%-16s | %-10s | Amount: %8s | Level: %-6s (%.2f) | Rules: %v\n",
						sc.UserID,
						sc.Profile,
						sc.Amount,
						result.Assessment.FraudRiskLevel,
						result.Assessment.FraudRiskScore,
						result.Assessment.TriggeredRules,
					)
				}
			}
		}()
	}

	for _, sc := range scenarios {
		work <- sc
	}
	close(work)

	wg.Wait()

	return metrics
}

func evaluateLoan(client *http.Client, baseURL string, sc LoanScenario) (*EvaluateResponse, error) {
	req := EvaluateRequest{
		UserID:        sc.UserID,
		WalletAddress: sc.WalletAddress,
		Amount:        sc.Amount,
		AssetSymbol:   sc.AssetSymbol,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/fraud/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 WORKLOAD\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	assessed := m.LowCount + m.MediumCount + m.HighCount
	fmt.Printf("\n🚦 RISK LEVELS\n")
	if assessed > 0 {
		fmt.Printf("   LOW:     %8d (%.2f%%)\n", m.LowCount, 100*float64(m.LowCount)/float64(assessed))
		fmt.Printf("   MEDIUM:  %8d (%.2f%%)\n", m.MediumCount, 100*float64(m.MediumCount)/float64(assessed))
		fmt.Printf("   HIGH:    %8d (%.2f%%)\n", m.HighCount, 100*float64(m.HighCount)/float64(assessed))
	} else {
		fmt.Println("   No successful assessments")
	}

	fmt.Printf("\n🔍 TRIGGERED RULES\n")
	if len(m.ruleCounts) == 0 {
		fmt.Println("   None triggered")
	} else {
		rules := make([]string, 0, len(m.ruleCounts))
		for rule := range m.ruleCounts {
			rules = append(rules, rule)
		}
		sort.Slice(rules, func(i, j int) bool {
			return m.ruleCounts[rules[i]] > m.ruleCounts[rules[j]]
		})
		for _, rule := range rules {
			fmt.Printf("   %-24s %8d\n", rule, m.ruleCounts[rule])
		}
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if len(m.latencies) > 0 {
		sorted := make([]int64, len(m.latencies))
		copy(sorted, m.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		avg := float64(sum) / float64(len(sorted))
		p50 := sorted[len(sorted)/2]
		p95 := sorted[len(sorted)*95/100]
		p99 := sorted[len(sorted)*99/100]

		fmt.Printf("   Avg Latency:      %.2f ms\n", avg)
		fmt.Printf("   p50 Latency:      %d ms\n", p50)
		fmt.Printf("   p95 Latency:      %d ms\n", p95)
		fmt.Printf("   p99 Latency:      %d ms\n", p99)
		fmt.Printf("   Throughput:       %.2f req/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}

	fmt.Println()
}

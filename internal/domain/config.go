package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// External collaborators
	Model ModelConfig `json:"model"`
	Chain ChainConfig `json:"chain"`

	// Pipeline bounds
	Pipeline PipelineConfig `json:"pipeline"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ModelConfig holds settings for the external risk-opinion model.
// An empty APIKey disables the integration entirely; the advisor then
// answers with its fixed low-risk fallback.
type ModelConfig struct {
	APIKey   string `json:"-"`
	Endpoint string `json:"endpoint"`
	Model    string `json:"model"`
	Timeout  int    `json:"timeout"` // seconds, per call
}

// ChainConfig holds settings for the on-chain score registry.
// An empty PrivateKey disables publishing; updates become logged no-ops.
type ChainConfig struct {
	RPCURL          string `json:"rpcUrl"`
	PrivateKey      string `json:"-"`
	RegistryAddress string `json:"registryAddress"`
	Timeout         int    `json:"timeout"` // seconds, per publish
}

// PipelineConfig bounds the evaluation pipeline's upstream calls.
type PipelineConfig struct {
	UpstreamTimeout int `json:"upstreamTimeout"` // seconds, identity/ledger reads
	VelocityWindow  int `json:"velocityWindow"`  // seconds, loan-request counting window
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// DefaultConfig returns a single-node default configuration:
// SQLite ledger, in-process cache and bus, model and chain publishing
// disabled until credentials are provided.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Model: ModelConfig{
			Endpoint: "https://generativelanguage.googleapis.com/v1beta",
			Model:    "gemini-1.5-flash",
			Timeout:  20,
		},
		Chain: ChainConfig{
			RPCURL:  "https://coston2-api.flare.network/ext/bc/C/rpc",
			Timeout: 30,
		},
		Pipeline: PipelineConfig{
			UpstreamTimeout: 5,
			VelocityWindow:  86400,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

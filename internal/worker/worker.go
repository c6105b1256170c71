// Package worker drains score publications off the bus and hands them
// to the on-chain publisher.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/credora-labs/kestrel/internal/domain"
)

// Worker subscribes to the score-publish topic and forwards each
// publication to the chain registry. Publish failures are logged and
// the message is dropped; an assessment is never retried or blocked on
// the chain being reachable.
type Worker struct {
	bus       domain.EventBus
	publisher domain.ScorePublisher

	published atomic.Int64
	dropped   atomic.Int64

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a score publish worker.
func NewWorker(bus domain.EventBus, publisher domain.ScorePublisher) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		publisher: publisher,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the score-publish topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicScorePublish, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("score publish worker started",
		"topic", domain.TopicScorePublish,
	)
	return nil
}

// handleMessage forwards one publication to the chain. The returned
// error is always nil so bus implementations never redeliver; the
// publish path is strictly best-effort.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()

	var pub domain.ScorePublication
	if err := json.Unmarshal(msg.Payload, &pub); err != nil {
		slog.Error("failed to parse score publication",
			"message_id", msg.ID,
			"error", err,
		)
		w.dropped.Add(1)
		return nil
	}

	if err := w.publisher.Publish(ctx, pub.WalletAddress, pub.FraudRiskScore, pub.FraudRiskLevel); err != nil {
		slog.Error("score publication failed",
			"wallet", pub.WalletAddress,
			"level", pub.FraudRiskLevel,
			"error", err,
		)
		w.dropped.Add(1)
		return nil
	}

	w.published.Add(1)
	slog.Debug("score publication handled",
		"wallet", pub.WalletAddress,
		"level", pub.FraudRiskLevel,
	)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("score publish worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Published         int64    `json:"published"`
	Dropped           int64    `json:"dropped"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Published:         w.published.Load(),
		Dropped:           w.dropped.Load(),
	}
}

package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/illmade-knight/go-ridecache/pkg/cache"
	"github.com/rs/zerolog"
)

// KeyAttribute is the message attribute carrying the dataset key to invalidate.
const KeyAttribute = "key"

// PushInvalidatorConfig holds the configuration for a PushInvalidator.
type PushInvalidatorConfig struct {
	SubscriptionID         string
	MaxOutstandingMessages int
	NumGoroutines          int
}

// NewPushInvalidatorDefaults returns a config with sensible receive settings.
func NewPushInvalidatorDefaults(subID string) *PushInvalidatorConfig {
	return &PushInvalidatorConfig{
		SubscriptionID:         subID,
		MaxOutstandingMessages: 100,
		NumGoroutines:          2,
	}
}

// changeEvent is the JSON body form of a change notification. Either field
// may be used; the key attribute takes precedence over both.
type changeEvent struct {
	Key  string   `json:"key"`
	Keys []string `json:"keys"`
}

// PushInvalidator consumes change events from a Pub/Sub subscription and
// invalidates the keys they name. It replaces polling where the backend can
// publish changes: the delay bound becomes delivery latency instead of the
// poll interval.
type PushInvalidator struct {
	client             *pubsub.Client
	subscriber         *pubsub.Subscriber
	target             cache.Invalidator
	logger             zerolog.Logger
	stopOnce           sync.Once
	cancelSubscription context.CancelFunc
	doneChan           chan struct{}
}

// NewPushInvalidator creates a PushInvalidator for an existing subscription.
func NewPushInvalidator(ctx context.Context, cfg *PushInvalidatorConfig, client *pubsub.Client, target cache.Invalidator, logger zerolog.Logger) (*PushInvalidator, error) {
	if target == nil {
		return nil, errors.New("push invalidator target cannot be nil")
	}

	subName := cfg.SubscriptionID
	if !strings.HasPrefix(subName, "projects/") {
		subName = fmt.Sprintf("projects/%s/subscriptions/%s", client.Project(), cfg.SubscriptionID)
	}
	checkCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	if _, err := client.SubscriptionAdminClient.GetSubscription(checkCtx, &pubsubpb.GetSubscriptionRequest{Subscription: subName}); err != nil {
		return nil, fmt.Errorf("subscription %s does not exist: %w", cfg.SubscriptionID, err)
	}

	sub := client.Subscriber(subName)
	sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	sub.ReceiveSettings.NumGoroutines = cfg.NumGoroutines

	logger.Info().Str("subscription_id", cfg.SubscriptionID).Msg("Listening for change events")

	return &PushInvalidator{
		client:     client,
		subscriber: sub,
		target:     target,
		logger:     logger.With().Str("component", "PushInvalidator").Str("subscription_id", cfg.SubscriptionID).Logger(),
		doneChan:   make(chan struct{}),
	}, nil
}

// Start begins receiving change events in the background.
func (p *PushInvalidator) Start(ctx context.Context) error {
	p.logger.Info().Msg("Starting change event consumption...")
	receiveCtx, cancel := context.WithCancel(ctx)
	p.cancelSubscription = cancel
	go func() {
		defer close(p.doneChan)
		defer p.logger.Info().Msg("Change event receive goroutine stopped.")

		err := p.subscriber.Receive(receiveCtx, p.handle)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error().Err(err).Msg("Pub/Sub Receive call exited with error")
		}
	}()
	return nil
}

func (p *PushInvalidator) handle(ctx context.Context, msg *pubsub.Message) {
	keys, err := keysFromMessage(msg)
	if err != nil {
		// A malformed event will never parse; redelivering it is pointless.
		p.logger.Warn().Err(err).Str("msg_id", msg.ID).Msg("Dropping unreadable change event.")
		msg.Ack()
		return
	}

	for _, key := range keys {
		if err := p.target.Invalidate(ctx, key); err != nil {
			if errors.Is(err, ErrNoRoute) {
				p.logger.Warn().Str("msg_id", msg.ID).Str("key", key).Msg("Change event for unknown dataset ignored.")
				continue
			}
			p.logger.Error().Err(err).Str("msg_id", msg.ID).Str("key", key).Msg("Failed to invalidate key. Nacking.")
			msg.Nack()
			return
		}
		p.logger.Debug().Str("msg_id", msg.ID).Str("key", key).Msg("Invalidated key from change event.")
	}
	msg.Ack()
}

func keysFromMessage(msg *pubsub.Message) ([]string, error) {
	if key := strings.TrimSpace(msg.Attributes[KeyAttribute]); key != "" {
		return []string{key}, nil
	}
	if len(msg.Data) == 0 {
		return nil, errors.New("change event has no key")
	}
	var ev changeEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode change event: %w", err)
	}
	var keys []string
	if ev.Key != "" {
		keys = append(keys, ev.Key)
	}
	for _, k := range ev.Keys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, errors.New("change event has no key")
	}
	return keys, nil
}

// Stop ends consumption and waits for the receive goroutine to exit.
func (p *PushInvalidator) Stop(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		p.logger.Info().Msg("Stopping push invalidator...")
		if p.cancelSubscription == nil {
			close(p.doneChan)
			return
		}
		p.cancelSubscription()
		select {
		case <-p.doneChan:
			p.logger.Info().Msg("Change event receive goroutine confirmed stopped.")
		case <-ctx.Done():
			err = fmt.Errorf("timeout waiting for push invalidator to stop: %w", ctx.Err())
			p.logger.Error().Err(err).Msg("Timeout waiting for Pub/Sub Receive goroutine to stop.")
		}
	})
	return err
}

// Done returns a channel that is closed once the receive loop has exited.
func (p *PushInvalidator) Done() <-chan struct{} { return p.doneChan }

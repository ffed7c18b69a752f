package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Handler func(ctx context.Context, event Event) error

type Subscriber struct {
	client        *redis.Client
	group         string
	consumer      string
	stream        string
	handler       Handler
	types         map[string]bool
	batchSize     int64
	blockDuration time.Duration
	retryAfter    time.Duration
	logger        *slog.Logger
}

type SubscriberConfig struct {
	Group    string
	Consumer string
	Stream   string
	Handler  Handler
	// Types limits the handler to these event types; other events are acked
	// unhandled. Empty means every type.
	Types         []string
	BatchSize     int64
	BlockDuration time.Duration
	// RetryAfter is how long a failed message stays pending before it is
	// claimed and handled again.
	RetryAfter time.Duration
	Logger     *slog.Logger
}

func NewSubscriber(client *redis.Client, config SubscriberConfig) *Subscriber {
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.BlockDuration == 0 {
		config.BlockDuration = 5 * time.Second
	}
	if config.RetryAfter == 0 {
		config.RetryAfter = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	var types map[string]bool
	if len(config.Types) > 0 {
		types = make(map[string]bool, len(config.Types))
		for _, t := range config.Types {
			types[t] = true
		}
	}

	return &Subscriber{
		client:        client,
		group:         config.Group,
		consumer:      config.Consumer,
		stream:        config.Stream,
		handler:       config.Handler,
		types:         types,
		batchSize:     config.BatchSize,
		blockDuration: config.BlockDuration,
		retryAfter:    config.RetryAfter,
		logger:        config.Logger.With("stream", config.Stream, "group", config.Group),
	}
}

// Start creates the consumer group if needed and processes messages until ctx is done.
func (s *Subscriber) Start(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	s.logger.Info("subscriber started", "consumer", s.consumer)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("subscriber stopping")
			return ctx.Err()
		default:
			if err := s.ReadOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("error reading messages", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

// ReadOnce retries pending messages idle for longer than RetryAfter, then
// reads and handles a single batch of new ones.
func (s *Subscriber) ReadOnce(ctx context.Context) error {
	stale, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  s.retryAfter,
		Start:    "0-0",
		Count:    s.batchSize,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to claim pending messages: %w", err)
	}
	s.handleBatch(ctx, stale)

	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    s.batchSize,
		Block:    s.blockDuration,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		s.handleBatch(ctx, stream.Messages)
	}

	return nil
}

func (s *Subscriber) handleBatch(ctx context.Context, messages []redis.XMessage) {
	for _, message := range messages {
		event, err := decodeMessage(message)
		switch {
		case err != nil:
			// Malformed entries would never decode on redelivery either.
			s.logger.Error("dropping malformed message", "id", message.ID, "error", err)
		case s.types != nil && !s.types[event.Type]:
		default:
			if err := s.handler(ctx, event); err != nil {
				// Left unacked; claimed again once idle for retryAfter.
				s.logger.Error("failed to process message", "id", message.ID, "type", event.Type, "error", err)
				continue
			}
		}

		if err := s.client.XAck(ctx, s.stream, s.group, message.ID).Err(); err != nil {
			s.logger.Error("failed to ack message", "id", message.ID, "error", err)
		}
	}
}

func decodeMessage(message redis.XMessage) (Event, error) {
	var event Event
	eventData, ok := message.Values["event"].(string)
	if !ok {
		return event, fmt.Errorf("invalid message format")
	}
	if err := json.Unmarshal([]byte(eventData), &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, nil
}

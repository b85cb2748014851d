package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"camsync/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const fanoutChannel = "camsync:signal"

// fanoutFrame wraps an envelope with its session and originating instance so
// subscribers can route it and skip their own publications.
type fanoutFrame struct {
	InstanceID string           `json:"instance_id"`
	SessionID  domain.SessionID `json:"session_id"`
	Envelope   domain.Envelope  `json:"envelope"`
}

// RedisFanout propagates signaling envelopes between relay instances over a
// single redis pub/sub channel.
type RedisFanout struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
}

// NewRedisFanout creates a fanout identified by instanceID.
func NewRedisFanout(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *RedisFanout {
	return &RedisFanout{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
	}
}

// Publish implements Fanout.
func (f *RedisFanout) Publish(ctx context.Context, sessionID domain.SessionID, env domain.Envelope) error {
	frame := fanoutFrame{
		InstanceID: f.instanceID,
		SessionID:  sessionID,
		Envelope:   env,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal fanout frame: %w", err)
	}
	if err := f.client.Publish(ctx, fanoutChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish fanout frame: %w", err)
	}
	return nil
}

// Subscribe implements Fanout. Frames published by this instance are skipped
// so local delivery happens exactly once.
func (f *RedisFanout) Subscribe(ctx context.Context, handler func(sessionID domain.SessionID, env domain.Envelope)) error {
	pubsub := f.client.Subscribe(ctx, fanoutChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var frame fanoutFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				f.logger.Warnw("failed to unmarshal fanout frame", "error", err)
				continue
			}
			if frame.InstanceID == f.instanceID {
				continue
			}
			handler(frame.SessionID, frame.Envelope)
		}
	}
}

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Broker fans out invitation events to subscribers keyed by student email.
// Subscribe returns a receive channel and a cancel func; callers must invoke
// cancel on disposal so no events are applied after unmount.
type Broker interface {
	Publish(ctx context.Context, event InvitationEvent) error
	Subscribe(ctx context.Context, studentEmail string) (<-chan InvitationEvent, func(), error)
}

// RedisBroker implements Broker on Redis pub/sub with one channel per email.
type RedisBroker struct {
	client        *redis.Client
	channelPrefix string
	bufferSize    int
	logger        *zap.Logger
}

// NewRedisBroker constructs a RedisBroker.
func NewRedisBroker(client *redis.Client, channelPrefix string, bufferSize int, logger *zap.Logger) *RedisBroker {
	if channelPrefix == "" {
		channelPrefix = "invitations"
	}
	if bufferSize <= 0 {
		bufferSize = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroker{client: client, channelPrefix: channelPrefix, bufferSize: bufferSize, logger: logger}
}

func (b *RedisBroker) channel(studentEmail string) string {
	return fmt.Sprintf("%s:%s", b.channelPrefix, strings.ToLower(studentEmail))
}

// Publish serialises the event onto the email-scoped channel.
func (b *RedisBroker) Publish(ctx context.Context, event InvitationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal invitation event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(event.StudentEmail), payload).Err(); err != nil {
		return fmt.Errorf("publish invitation event: %w", err)
	}
	return nil
}

// Subscribe listens on the email-scoped channel until cancel is called or the
// context ends. Malformed payloads are logged and skipped; a slow consumer
// drops events rather than blocking the pump (last-write-wins view semantics
// make a missed intermediate event harmless after the next reconciliation).
func (b *RedisBroker) Subscribe(ctx context.Context, studentEmail string) (<-chan InvitationEvent, func(), error) {
	sub := b.client.Subscribe(ctx, b.channel(studentEmail))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe invitation events: %w", err)
	}

	events := make(chan InvitationEvent, b.bufferSize)
	done := make(chan struct{})

	go func() {
		defer close(events)
		src := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-src:
				if !ok {
					return
				}
				var event InvitationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("dropping malformed invitation event", zap.Error(err))
					continue
				}
				select {
				case events <- event:
				default:
					b.logger.Warn("invitation event buffer full, dropping event",
						zap.String("request_id", event.RequestID))
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			if err := sub.Close(); err != nil {
				b.logger.Warn("failed to close invitation subscription", zap.Error(err))
			}
		})
	}
	return events, cancel, nil
}

package events

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisFeed publishes change events on a Redis pub/sub channel and lets
// HTTP clients subscribe to it.
type RedisFeed struct {
	client  *redis.Client
	channel string
}

func NewRedisFeed(client *redis.Client, channel string) *RedisFeed {
	return &RedisFeed{client: client, channel: channel}
}

func (f *RedisFeed) Publish(ctx context.Context, e ChangeEvent) error {
	b, err := Encode(e)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, b).Err()
}

// Subscribe returns a channel of decoded events. It is closed when ctx is done
// or the subscription fails; the returned func releases the subscription.
func (f *RedisFeed) Subscribe(ctx context.Context) (<-chan ChangeEvent, func(), error) {
	sub := f.client.Subscribe(ctx, f.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, func() {}, err
	}
	out := make(chan ChangeEvent)
	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				e, err := Decode([]byte(m.Payload))
				if err != nil {
					log.Warn().Err(err).Str("channel", f.channel).Msg("change feed: undecodable message")
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, func() { sub.Close() }, nil
}

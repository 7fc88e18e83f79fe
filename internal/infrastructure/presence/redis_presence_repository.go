package presence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"
	"freelancehub/pkg/errors"
	"freelancehub/pkg/logger"
)

const (
	keyPrefix     = "presence:"
	channelPrefix = "channel:presence:"

	// DefaultTTL expires records of clients that stopped sending heartbeats.
	DefaultTTL = 5 * time.Minute
	offlineTTL = 24 * time.Hour

	maxTxRetries = 3
)

// RedisPresenceRepository keeps one JSON record per user and publishes every
// change on a per user channel.
type RedisPresenceRepository struct {
	client *redis.Client
	ttl    time.Duration
}

var _ repository.PresenceRepository = (*RedisPresenceRepository)(nil)

func NewRedisPresenceRepository(client *redis.Client, ttl time.Duration) *RedisPresenceRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisPresenceRepository{
		client: client,
		ttl:    ttl,
	}
}

func key(userID string) string     { return keyPrefix + userID }
func channel(userID string) string { return channelPrefix + userID }

func (r *RedisPresenceRepository) Upsert(ctx context.Context, p *entity.Presence) error {
	return r.mutate(ctx, p.UserID, func(current *entity.Presence) {
		current.Status = p.Status
		current.LastActive = p.LastActive
		if p.Device != nil {
			d := *p.Device
			current.Device = &d
		}
	})
}

func (r *RedisPresenceRepository) SetTyping(ctx context.Context, userID string, typing *entity.TypingIndicator) error {
	return r.mutate(ctx, userID, func(current *entity.Presence) {
		if current.Status == "" {
			current.Status = entity.PresenceOnline
		}
		if typing == nil {
			current.TypingIn = nil
			return
		}
		t := *typing
		current.TypingIn = &t
	})
}

// mutate is an optimistic read-modify-write of one record. The change is
// published after the transaction commits.
func (r *RedisPresenceRepository) mutate(ctx context.Context, userID string, change func(*entity.Presence)) error {
	k := key(userID)
	var payload []byte

	txf := func(tx *redis.Tx) error {
		current := &entity.Presence{UserID: userID}
		data, err := tx.Get(ctx, k).Bytes()
		switch {
		case err == redis.Nil:
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(data, current); err != nil {
				logger.Warn("Presence record for %s is unreadable, replacing it: %v", userID, err)
				current = &entity.Presence{UserID: userID}
			}
		}

		change(current)
		payload, err = json.Marshal(current)
		if err != nil {
			return err
		}
		ttl := r.ttl
		if current.Status == entity.PresenceOffline {
			ttl = offlineTTL
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, payload, ttl)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = r.client.Watch(ctx, txf, k)
		if err != redis.TxFailedErr {
			break
		}
	}
	if err != nil {
		return errors.Internal("Failed to update presence", err)
	}

	if err := r.client.Publish(ctx, channel(userID), payload).Err(); err != nil {
		logger.Warn("Presence publish Error for %s: %v", userID, err)
	}
	return nil
}

func (r *RedisPresenceRepository) Get(ctx context.Context, userID string) (*entity.Presence, error) {
	data, err := r.client.Get(ctx, key(userID)).Bytes()
	if err == redis.Nil {
		return nil, errors.NotFound("Presence", nil)
	}
	if err != nil {
		return nil, errors.Internal("Failed to get presence", err)
	}
	var p entity.Presence
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Internal("Failed to parse presence data", err)
	}
	return &p, nil
}

// Subscribe delivers the current record, then every published change. A
// record that does not exist is delivered as nil.
func (r *RedisPresenceRepository) Subscribe(ctx context.Context, userID string, onChange func(*entity.Presence), onError func(error)) repository.Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	var once sync.Once
	stop := func() { once.Do(cancel) }

	go func() {
		sub := r.client.Subscribe(ctx, channel(userID))
		defer sub.Close()

		// the subscription must be live before the initial read
		if _, err := sub.Receive(ctx); err != nil {
			r.reportError(ctx, userID, err, onError)
			return
		}
		current, err := r.Get(ctx, userID)
		switch {
		case errors.IsNotFound(err):
			onChange(nil)
		case err != nil:
			r.reportError(ctx, userID, err, onError)
			return
		default:
			onChange(current)
		}

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var p entity.Presence
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					logger.Warn("Presence event for %s is unreadable: %v", userID, err)
					continue
				}
				onChange(&p)
			}
		}
	}()
	return stop
}

func (r *RedisPresenceRepository) reportError(ctx context.Context, userID string, err error, onError func(error)) {
	if ctx.Err() != nil {
		return
	}
	logger.Error("Presence subscription for %s stopped: %v", userID, err)
	if onError != nil {
		onError(err)
	}
}

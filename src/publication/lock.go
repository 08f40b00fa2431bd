package publication

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"git.handmade.network/hmn/edu/src/logging"
	"git.handmade.network/hmn/edu/src/oops"
	"git.handmade.network/hmn/edu/src/utils"
	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/redis/go-redis/v9"
)

var ErrContentBusy = errors.New("another publication operation is running on this content")

/*
Keeps two publication operations from touching the same content at once.
Lock either returns a function that releases the lock, or ErrContentBusy.
*/
type Locker interface {
	Lock(ctx context.Context, contentID int) (unlock func(), err error)
}

// Only protects against operations inside the same process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[int]bool
}

var _ Locker = &LocalLocker{}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[int]bool{}}
}

func (l *LocalLocker) Lock(ctx context.Context, contentID int) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[contentID] {
		return nil, oops.New(ErrContentBusy, "content %d", contentID)
	}
	l.held[contentID] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.held, contentID)
		})
	}, nil
}

/*
Shares locks between processes through Redis. A lock is a key holding a
random token, set only if absent and expiring after TTL so that a crashed
holder cannot block a content forever. Unlocking deletes the key only if it
still holds our token.

A busy content is retried a few times with a growing delay before giving up.
*/
type RedisLocker struct {
	Client    redis.UniversalClient
	KeyPrefix string
	TTL       time.Duration
	Attempts  int
	MinDelay  time.Duration
	MaxDelay  time.Duration
}

var _ Locker = &RedisLocker{}

func NewRedisLocker(client redis.UniversalClient, keyPrefix string) *RedisLocker {
	return &RedisLocker{
		Client:    client,
		KeyPrefix: keyPrefix,
		TTL:       10 * time.Minute,
		Attempts:  4,
		MinDelay:  100 * time.Millisecond,
		MaxDelay:  2 * time.Second,
	}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisLocker) key(contentID int) string {
	return fmt.Sprintf("%slock:%d", l.KeyPrefix, contentID)
}

func (l *RedisLocker) Lock(ctx context.Context, contentID int) (func(), error) {
	key := l.key(contentID)
	token := uuid.NewString()
	boff := backoff.Backoff{
		Min: l.MinDelay,
		Max: l.MaxDelay,
	}

	attempts := max(l.Attempts, 1)
	for attempt := 1; ; attempt++ {
		ok, err := l.Client.SetNX(ctx, key, token, l.TTL).Result()
		if err != nil {
			return nil, oops.New(err, "failed to take publication lock for content %d", contentID)
		}
		if ok {
			break
		}
		if attempt >= attempts {
			return nil, oops.New(ErrContentBusy, "content %d", contentID)
		}

		if err := utils.SleepContext(ctx, boff.Duration()); err != nil {
			return nil, oops.New(errors.Join(err, ctx.Err()), "gave up waiting for the lock on content %d", contentID)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The operation may have been canceled; releasing must still happen.
			err := releaseScript.Run(context.Background(), l.Client, []string{key}, token).Err()
			if err != nil {
				logging.Error().Err(err).Int("content", contentID).Msg("failed to release publication lock")
			}
		})
	}, nil
}

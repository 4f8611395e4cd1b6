package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLeaseLost is returned by Renew when the sweeper lease expired or was
// released before this instance renewed it.
var ErrLeaseLost = errors.New("sweeper lease lost")

// LeaderElector decides which instance runs the agent sweeper. The holder
// stores its instance ID under lockKey with a TTL and extends it on every
// sweep tick, so the TTL must be comfortably longer than the sweep interval.
type LeaderElector struct {
	rdb        *redis.Client
	lockKey    string
	instanceID string
	ttl        time.Duration
}

var _ Leadership = (*LeaderElector)(nil)

func NewLeaderElector(rdb *redis.Client, lockKey, instanceID string, ttl time.Duration) *LeaderElector {
	return &LeaderElector{rdb: rdb, lockKey: lockKey, instanceID: instanceID, ttl: ttl}
}

func (l *LeaderElector) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.lockKey, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire sweeper lease %s: %w", l.lockKey, err)
	}
	return ok, nil
}

// renewScript extends the lease only while ARGV[1] holds it and returns the
// current holder, or nil when nobody does.
var renewScript = redis.NewScript(`
	local holder = redis.call("GET", KEYS[1])
	if holder == ARGV[1] then
		redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end
	return holder
`)

// Renew extends the lease in one round trip. It fails with ErrLeaseLost when
// the key is gone and names the new holder when another instance took over.
func (l *LeaderElector) Renew(ctx context.Context) error {
	holder, err := renewScript.Run(ctx, l.rdb, []string{l.lockKey}, l.instanceID, l.ttl.Milliseconds()).Text()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrLeaseLost
	case err != nil:
		return fmt.Errorf("renew sweeper lease %s: %w", l.lockKey, err)
	case holder != l.instanceID:
		return fmt.Errorf("sweeper lease held by %s", holder)
	}
	return nil
}

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// Release deletes the lease if this instance still holds it, letting another
// instance take over the sweep on its next tick.
func (l *LeaderElector) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.lockKey}, l.instanceID).Err(); err != nil {
		return fmt.Errorf("release sweeper lease %s: %w", l.lockKey, err)
	}
	return nil
}

package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const leaseKeyPrefix = "claims:lease:"

// Lease grants a periodic job to a single replica for ttl. It is a plain
// SET NX PX, so a holder that crashes releases the lease on expiry.
type Lease struct {
	client redis.Cmdable
	owner  string
}

func NewLease(client redis.Cmdable, owner string) *Lease {
	return &Lease{client: client, owner: owner}
}

// Acquire reports whether this replica now holds the named lease.
func (l *Lease) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, leaseKeyPrefix+name, l.owner, ttl).Result()
}

// Holder returns the current owner of the named lease, or "" if it is free.
func (l *Lease) Holder(ctx context.Context, name string) (string, error) {
	owner, err := l.client.Get(ctx, leaseKeyPrefix+name).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return owner, err
}

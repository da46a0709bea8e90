// Package leaselock implements expiring, self-renewing leases on the
// index_leases table. The indexer holds one lease per graph so that two
// workers never index the same graph concurrently.
package leaselock

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/OFFIS-RIT/graphrag/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	// ErrBusy is returned by Acquire when another holder owns the key and
	// Options.Wait is false.
	ErrBusy = errors.New("lease lock busy")
	// ErrLost is the cancel cause of a lease whose renewal failed.
	ErrLost = errors.New("lease lock lost")
)

const (
	renewAttempts  = 3
	renewTimeout   = 15 * time.Second
	releaseTimeout = 10 * time.Second
)

// DB is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Client struct {
	db DB
}

func New(db DB) *Client {
	return &Client{db: db}
}

// GraphKey is the lease key of an indexing run for graphID.
func GraphKey(graphID string) string {
	return "graphrag:index:" + graphID
}

// Options tune a lease. TTL defaults to 5 minutes and RenewEvery to half of
// it. Wait makes Acquire poll every WaitInterval (+ up to WaitJitter)
// instead of failing with ErrBusy.
type Options struct {
	TTL        time.Duration
	RenewEvery time.Duration

	Wait         bool
	WaitInterval time.Duration
	WaitJitter   time.Duration

	TokenPrefix string
}

func (o Options) normalize() Options {
	if o.TTL < time.Millisecond {
		o.TTL = 5 * time.Minute
	}
	if o.RenewEvery <= 0 || o.RenewEvery >= o.TTL {
		o.RenewEvery = max(o.TTL/2, time.Second)
	}
	if o.WaitInterval <= 0 {
		o.WaitInterval = 250 * time.Millisecond
	}
	o.WaitJitter = max(o.WaitJitter, 0)
	return o
}

// Lease is a held key. Context is canceled on Release or when renewal
// fails, in which case context.Cause returns ErrLost.
type Lease struct {
	Key     string
	Token   string
	Context context.Context

	db     DB
	ttl    time.Duration
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// WithLease runs fn under the lease for key and releases it afterwards.
// If the lease was lost while fn ran, the returned error includes ErrLost.
func (c *Client) WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	lease, err := c.Acquire(ctx, key, opts)
	if err != nil {
		return err
	}

	runErr := fn(lease.Context)
	lost := errors.Is(context.Cause(lease.Context), ErrLost)

	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := lease.Release(relCtx); err != nil {
		logger.Warn("[Lock] Failed to release lease", "key", key, "err", err)
	}

	if lost {
		return errors.Join(runErr, ErrLost)
	}
	return runErr
}

// Acquire takes the lease for key. Expired leases of other holders are
// taken over.
func (c *Client) Acquire(ctx context.Context, key string, opts Options) (*Lease, error) {
	if key == "" {
		return nil, errors.New("lease lock key is empty")
	}
	opts = opts.normalize()

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	token := opts.TokenPrefix + id

	for {
		ok, err := c.claim(ctx, key, token, opts.TTL)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if !opts.Wait {
			return nil, ErrBusy
		}
		logger.Debug("[Lock] Waiting for lease", "key", key)
		if err := pause(ctx, opts.WaitInterval+jitter(opts.WaitJitter)); err != nil {
			return nil, err
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	l := &Lease{
		Key:     key,
		Token:   token,
		Context: leaseCtx,
		db:      c.db,
		ttl:     opts.TTL,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go l.keepAlive(opts.RenewEvery)

	logger.Debug("[Lock] Lease acquired", "key", key, "ttl", opts.TTL)
	return l, nil
}

func (c *Client) claim(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	var got string
	err := c.db.QueryRow(ctx, claimSQL, key, token, ttl.Seconds()).Scan(&got)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	}
	return got == key, nil
}

// Release stops renewal and deletes the row if this lease still owns it.
// It is safe to call more than once.
func (l *Lease) Release(ctx context.Context) error {
	l.cancel(context.Canceled)
	<-l.done

	_, err := l.db.Exec(ctx, releaseSQL, l.Key, l.Token)
	return err
}

func (l *Lease) keepAlive(every time.Duration) {
	defer close(l.done)

	tick := time.NewTicker(every)
	defer tick.Stop()

	for {
		select {
		case <-l.Context.Done():
			return
		case <-tick.C:
		}
		if err := l.renew(); err != nil {
			if l.Context.Err() != nil {
				return
			}
			logger.Error("[Lock] Lease lost", "key", l.Key, "err", err)
			l.cancel(ErrLost)
			return
		}
	}
}

// renew extends the expiry. A missing row means another holder took over
// and is reported as ErrLost without further attempts.
func (l *Lease) renew() error {
	var err error
	for attempt := range renewAttempts {
		if attempt > 0 {
			if perr := pause(l.Context, 200*time.Millisecond); perr != nil {
				return perr
			}
		}
		ctx, cancel := context.WithTimeout(l.Context, renewTimeout)
		var got string
		err = l.db.QueryRow(ctx, renewSQL, l.Key, l.Token, l.ttl.Seconds()).Scan(&got)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLost
		}
	}
	return err
}

func jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(limit) + 1))
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const claimSQL = `
INSERT INTO index_leases AS l (lease_key, holder, expires_at)
VALUES ($1, $2, now() + make_interval(secs => $3))
ON CONFLICT (lease_key) DO UPDATE
   SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
 WHERE l.expires_at < now() OR l.holder = EXCLUDED.holder
RETURNING lease_key`

const renewSQL = `
UPDATE index_leases
   SET expires_at = now() + make_interval(secs => $3)
 WHERE lease_key = $1 AND holder = $2
RETURNING lease_key`

const releaseSQL = `DELETE FROM index_leases WHERE lease_key = $1 AND holder = $2`

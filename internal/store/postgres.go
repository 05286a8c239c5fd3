// Package store is the Postgres-backed persistence layer for C3 (Sequence
// Allocator), C4 (Message Store), and C5 (Read-Position Store), plus a
// read-through membership store that backs C2's cache. Grounded on
// primal-host-primal-pds's jackc/pgx/v5 pool usage.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/echo-chat/realtime-core/internal/apperr"
)

// Pool wraps a pgxpool.Pool with the store's default call deadline (spec §5:
// "every outbound database call has a deadline, default 5s").
type Pool struct {
	db      *pgxpool.Pool
	logger  zerolog.Logger
	timeout time.Duration
}

// Open establishes the connection pool against dsn.
func Open(ctx context.Context, dsn string, logger zerolog.Logger) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "invalid postgres dsn", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "failed to open postgres pool", err)
	}

	return &Pool{db: pool, logger: logger, timeout: 5 * time.Second}, nil
}

func (p *Pool) Close() {
	p.db.Close()
}

// withDeadline bounds ctx to the store's call deadline. Errors from calls made
// under it are classified by deadlineErr.
func (p *Pool) withDeadline(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, p.timeout)
}

// deadlineErr classifies a store-layer error as Timeout when the call's
// context deadline was exceeded, Unavailable otherwise (spec §7: store
// errors never surface as raw driver errors).
func deadlineErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if e, ok := apperr.As(err); ok {
		return e
	}
	if ctx.Err() != nil {
		return apperr.Wrap(apperr.Timeout, "store call exceeded deadline", err)
	}
	return apperr.Wrap(apperr.Unavailable, "store operation failed", err)
}

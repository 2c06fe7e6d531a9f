package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgx shared by pools and transactions
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// BaseRepository is embedded by every repository. Calls made with a context
// from TransactionManager.WithTransaction run inside that transaction.
type BaseRepository struct {
	pool *pgxpool.Pool
}

func NewBaseRepository(pool *pgxpool.Pool) BaseRepository {
	return BaseRepository{pool: pool}
}

// conn returns the transaction carried by ctx, or the pool
func (r *BaseRepository) conn(ctx context.Context) querier {
	return GetConn(ctx, r.pool)
}

// retryOnConflict runs insert until it stops failing with a unique violation,
// up to attempts times. Inside a transaction a violation aborts the transaction,
// so the first error is returned as is.
func (r *BaseRepository) retryOnConflict(ctx context.Context, attempts int, insert func() error) error {
	var err error
	for range attempts {
		if err = insert(); err == nil || !isUniqueViolation(err) || GetTx(ctx) != nil {
			return err
		}
	}
	return err
}

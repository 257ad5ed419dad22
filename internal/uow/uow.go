package uow

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// TxRunner runs fn in a transaction carried by the context passed to fn.
// postgresrepo.Store and memory.Store implement it.
type TxRunner interface {
	RunTx(ctx context.Context, opts *pgx.TxOptions, fn func(ctx context.Context) error) error
}

type hooksKey struct{}

// UoW represents a unit of work.
type UoW struct {
	runner TxRunner
}

func NewUoW(runner TxRunner) *UoW {
	return &UoW{runner: runner}
}

// Do runs fn inside the transaction. After a successful commit,
// it executes all after-commit hooks.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, after func(AfterCommit)) error,
) error {
	return u.DoWithOpts(ctx, nil, fn)
}

// DoWithOpts runs fn inside the transaction with the given options. Hooks
// registered by an attempt that was retried are discarded. A nested call joins
// the outer unit of work and its hooks run after the outer commit.
func (u *UoW) DoWithOpts(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, after func(AfterCommit)) error,
) error {
	if outer, ok := ctx.Value(hooksKey{}).(*[]AfterCommit); ok {
		return u.runner.RunTx(ctx, opts, func(ctx context.Context) error {
			return fn(ctx, func(h AfterCommit) {
				*outer = append(*outer, h)
			})
		})
	}

	var hooks []AfterCommit

	err := u.runner.RunTx(ctx, opts, func(ctx context.Context) error {
		hooks = hooks[:0]
		return fn(context.WithValue(ctx, hooksKey{}, &hooks), func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}

package repositories

import "context"

// TxFn is a function that runs within a transaction
type TxFn func(ctx context.Context) error

// TransactionManager runs a function atomically: every repository call made
// with the ctx passed to fn commits together or not at all.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}

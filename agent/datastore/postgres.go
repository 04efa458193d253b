package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// PostgresStore serves orders and policy chunks from Postgres via bun.
type PostgresStore struct {
	db *bun.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore opens a connection pool for dsn and verifies it.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) GetOrder(ctx context.Context, orderID string) (OrderRecord, error) {
	var order OrderRecord
	err := s.db.NewSelect().
		Model(&order).
		Where("order_id = ?", orderID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return OrderRecord{}, ErrOrderNotFound
	}
	if err != nil {
		return OrderRecord{}, fmt.Errorf("select order %s: %w", orderID, err)
	}
	return order, nil
}

// UpdateOrderStatus is a conditional update: the WHERE clause re-checks the
// expected current status so concurrent refunds cannot both win.
func (s *PostgresStore) UpdateOrderStatus(ctx context.Context, orderID string, from, to OrderStatus, refund *RefundFields) error {
	q := s.db.NewUpdate().
		Model((*OrderRecord)(nil)).
		Set("status = ?", to).
		Where("order_id = ?", orderID).
		Where("status = ?", from)

	if refund != nil {
		q = q.Set("refund_transaction_id = ?", refund.TransactionID).
			Set("refund_date = ?", refund.Date).
			Set("refund_amount = ?", refund.Amount)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("update order %s: %w", orderID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order %s: rows affected: %w", orderID, err)
	}
	if affected == 0 {
		exists, err := s.db.NewSelect().
			Model((*OrderRecord)(nil)).
			Where("order_id = ?", orderID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("update order %s: recheck: %w", orderID, err)
		}
		if !exists {
			return ErrOrderNotFound
		}
		return ErrStatusConflict
	}
	return nil
}

func (s *PostgresStore) ListPolicyChunks(ctx context.Context) ([]PolicyChunk, error) {
	var chunks []PolicyChunk
	if err := s.db.NewSelect().Model(&chunks).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select policy chunks: %w", err)
	}
	return chunks, nil
}

// internal/repository/transaction_repository.go
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hardware-service/internal/database"
	"hardware-service/internal/model"
	"hardware-service/pkg/codes"
)

// TransactionRepository persists the payment audit trail. Writes are
// best-effort; a store failure never fails the payment itself.
type TransactionRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewTransactionRepository creates a transaction repository.
func NewTransactionRepository(db *database.DB, logger *zap.Logger) *TransactionRepository {
	return &TransactionRepository{db: db, logger: logger}
}

// SaveTransaction upserts a transaction row. Called once on creation and once
// on settlement.
func (r *TransactionRepository) SaveTransaction(tx *model.PaymentTransaction) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO payment_transactions (
			id, device_id, amount, currency, status, card_type, last4,
			auth_code, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			card_type = EXCLUDED.card_type,
			last4 = EXCLUDED.last4,
			auth_code = EXCLUDED.auth_code,
			completed_at = EXCLUDED.completed_at
	`

	_, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.DeviceID, tx.Amount, tx.Currency, tx.Status,
		string(tx.CardType), tx.Last4, tx.AuthCode, tx.CreatedAt, tx.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

// ListTransactions returns the most recent transactions for a device, newest
// first.
func (r *TransactionRepository) ListTransactions(ctx context.Context, deviceID uuid.UUID, limit int) ([]*model.PaymentTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, device_id, amount, currency, status, card_type, last4,
			   auth_code, created_at, completed_at
		FROM payment_transactions
		WHERE device_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.PaymentTransaction
	for rows.Next() {
		tx := &model.PaymentTransaction{}
		var cardType string
		if err := rows.Scan(
			&tx.ID, &tx.DeviceID, &tx.Amount, &tx.Currency, &tx.Status,
			&cardType, &tx.Last4, &tx.AuthCode, &tx.CreatedAt, &tx.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.CardType = codes.CardBrand(cardType)
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	r.logger.Debug("Transactions loaded",
		zap.String("device_id", deviceID.String()),
		zap.Int("count", len(transactions)),
	)
	return transactions, nil
}

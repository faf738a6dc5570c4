package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
)

// SaveSettlement persists a new settlement transaction to the database.
func (s *SQLiteStore) SaveSettlement(ctx context.Context, settlement *models.SettlementTransaction) error {
	// Generate ID if not set
	if settlement.ID == "" {
		settlement.ID = uuid.New().String()
	}
	if settlement.CreatedAt == 0 {
		settlement.CreatedAt = time.Now().Unix()
	}

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO settlements (id, from_user, to_user, amount, algorithm, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		settlement.ID, settlement.From, settlement.To, settlement.Amount,
		settlement.Algorithm, settlement.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}

	return nil
}

// ListSettlements retrieves all settlements in insertion order.
func (s *SQLiteStore) ListSettlements(ctx context.Context) ([]models.SettlementTransaction, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, from_user, to_user, amount, algorithm, created_at
		 FROM settlements ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []models.SettlementTransaction
	for rows.Next() {
		var st models.SettlementTransaction
		if err := rows.Scan(&st.ID, &st.From, &st.To, &st.Amount, &st.Algorithm, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		settlements = append(settlements, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}

	return settlements, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
)

// SaveSettlement persists a new settlement transaction.
func (s *Store) SaveSettlement(ctx context.Context, st *models.SettlementTransaction) error {
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	if st.CreatedAt == 0 {
		st.CreatedAt = time.Now().Unix()
	}

	_, err := s.q.Exec(ctx,
		`INSERT INTO settlements (id, from_user, to_user, amount, algorithm, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		st.ID, string(st.From), string(st.To), st.Amount.String(), st.Algorithm, st.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}

// ListSettlements retrieves all settlements in insertion order.
func (s *Store) ListSettlements(ctx context.Context) ([]models.SettlementTransaction, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, from_user, to_user, amount, algorithm, created_at
		 FROM settlements ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []models.SettlementTransaction
	for rows.Next() {
		var (
			st       models.SettlementTransaction
			from, to string
		)
		if err := rows.Scan(&st.ID, &from, &to, &st.Amount, &st.Algorithm, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		st.From, st.To = models.UserID(from), models.UserID(to)
		settlements = append(settlements, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}
	return settlements, nil
}

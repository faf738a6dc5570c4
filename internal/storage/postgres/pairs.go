package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

const pairColumns = "debtor, creditor, amount, version, updated_at"

func scanPair(row pgx.Row) (models.PairwiseBalance, error) {
	var (
		p                models.PairwiseBalance
		debtor, creditor string
	)
	err := row.Scan(&debtor, &creditor, &p.Amount, &p.Version, &p.UpdatedAt)
	p.Debtor, p.Creditor = models.UserID(debtor), models.UserID(creditor)
	return p, err
}

// FindPair returns the record between u1 and u2 in either orientation.
func (s *Store) FindPair(ctx context.Context, u1, u2 models.UserID) (*models.PairwiseBalance, error) {
	lo, hi := storage.PairKey(u1, u2)
	p, err := scanPair(s.q.QueryRow(ctx,
		"SELECT "+pairColumns+" FROM user_pairs WHERE user_lo = $1 AND user_hi = $2",
		string(lo), string(hi),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: pair %s/%s", storage.ErrNotFound, u1, u2)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pair: %w", err)
	}
	return &p, nil
}

// UpsertPair inserts or updates a pair record guarded by its version.
func (s *Store) UpsertPair(ctx context.Context, rec *models.PairwiseBalance) error {
	lo, hi := storage.PairKey(rec.Debtor, rec.Creditor)
	now := time.Now().Unix()

	var query string
	args := []any{string(lo), string(hi), string(rec.Debtor), string(rec.Creditor), rec.Amount.String(), now}
	if rec.Version == 0 {
		query = `INSERT INTO user_pairs (user_lo, user_hi, debtor, creditor, amount, version, updated_at)
			VALUES ($1, $2, $3, $4, $5, 1, $6)
			ON CONFLICT (user_lo, user_hi) DO NOTHING`
	} else {
		query = `UPDATE user_pairs SET debtor = $3, creditor = $4, amount = $5, version = version + 1, updated_at = $6
			WHERE user_lo = $1 AND user_hi = $2 AND version = $7`
		args = append(args, rec.Version)
	}

	tag, err := s.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to upsert pair: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: pair %s/%s at version %d", storage.ErrVersionConflict, lo, hi, rec.Version)
	}

	rec.Version++
	rec.UpdatedAt = now
	return nil
}

// DeletePair removes a pair record guarded by its version.
func (s *Store) DeletePair(ctx context.Context, rec *models.PairwiseBalance) error {
	lo, hi := storage.PairKey(rec.Debtor, rec.Creditor)

	var version int64
	err := s.q.QueryRow(ctx,
		"SELECT version FROM user_pairs WHERE user_lo = $1 AND user_hi = $2", string(lo), string(hi),
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: pair %s/%s", storage.ErrNotFound, lo, hi)
	}
	if err != nil {
		return fmt.Errorf("failed to check pair existence: %w", err)
	}

	tag, err := s.q.Exec(ctx,
		"DELETE FROM user_pairs WHERE user_lo = $1 AND user_hi = $2 AND version = $3",
		string(lo), string(hi), rec.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to delete pair: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: pair %s/%s at version %d", storage.ErrVersionConflict, lo, hi, rec.Version)
	}
	return nil
}

// FindAllPairsForUser returns every record where u is debtor or creditor.
func (s *Store) FindAllPairsForUser(ctx context.Context, u models.UserID) ([]models.PairwiseBalance, error) {
	return s.queryPairs(ctx,
		"SELECT "+pairColumns+" FROM user_pairs WHERE user_lo = $1 OR user_hi = $1 ORDER BY user_lo, user_hi",
		string(u),
	)
}

// FindAllPairs returns every record.
func (s *Store) FindAllPairs(ctx context.Context) ([]models.PairwiseBalance, error) {
	return s.queryPairs(ctx, "SELECT "+pairColumns+" FROM user_pairs ORDER BY user_lo, user_hi")
}

func (s *Store) queryPairs(ctx context.Context, query string, args ...any) ([]models.PairwiseBalance, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pairs: %w", err)
	}
	defer rows.Close()

	var pairs []models.PairwiseBalance
	for rows.Next() {
		p, err := scanPair(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pairs: %w", err)
	}
	return pairs, nil
}

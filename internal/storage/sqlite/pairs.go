package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

const pairColumns = "debtor, creditor, amount, version, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPair(r rowScanner) (models.PairwiseBalance, error) {
	var p models.PairwiseBalance
	err := r.Scan(&p.Debtor, &p.Creditor, &p.Amount, &p.Version, &p.UpdatedAt)
	return p, err
}

// FindPair returns the record between u1 and u2 in either orientation.
func (s *SQLiteStore) FindPair(ctx context.Context, u1, u2 models.UserID) (*models.PairwiseBalance, error) {
	lo, hi := storage.PairKey(u1, u2)
	p, err := scanPair(s.q.QueryRowContext(ctx,
		"SELECT "+pairColumns+" FROM user_pairs WHERE user_lo = ? AND user_hi = ?",
		lo, hi,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: pair %s/%s", storage.ErrNotFound, u1, u2)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pair: %w", err)
	}
	return &p, nil
}

// UpsertPair inserts or updates a pair record guarded by its version.
func (s *SQLiteStore) UpsertPair(ctx context.Context, rec *models.PairwiseBalance) error {
	lo, hi := storage.PairKey(rec.Debtor, rec.Creditor)
	now := time.Now().Unix()

	var (
		res sql.Result
		err error
	)
	if rec.Version == 0 {
		res, err = s.q.ExecContext(ctx,
			`INSERT INTO user_pairs (user_lo, user_hi, debtor, creditor, amount, version, updated_at)
			 VALUES (?, ?, ?, ?, ?, 1, ?)
			 ON CONFLICT (user_lo, user_hi) DO NOTHING`,
			lo, hi, rec.Debtor, rec.Creditor, rec.Amount, now,
		)
	} else {
		res, err = s.q.ExecContext(ctx,
			`UPDATE user_pairs SET debtor = ?, creditor = ?, amount = ?, version = version + 1, updated_at = ?
			 WHERE user_lo = ? AND user_hi = ? AND version = ?`,
			rec.Debtor, rec.Creditor, rec.Amount, now, lo, hi, rec.Version,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert pair: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to upsert pair: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: pair %s/%s at version %d", storage.ErrVersionConflict, lo, hi, rec.Version)
	}

	rec.Version++
	rec.UpdatedAt = now
	return nil
}

// DeletePair removes a pair record guarded by its version.
func (s *SQLiteStore) DeletePair(ctx context.Context, rec *models.PairwiseBalance) error {
	lo, hi := storage.PairKey(rec.Debtor, rec.Creditor)

	// Check if pair exists
	var version int64
	err := s.q.QueryRowContext(ctx,
		"SELECT version FROM user_pairs WHERE user_lo = ? AND user_hi = ?", lo, hi,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: pair %s/%s", storage.ErrNotFound, lo, hi)
	}
	if err != nil {
		return fmt.Errorf("failed to check pair existence: %w", err)
	}

	res, err := s.q.ExecContext(ctx,
		"DELETE FROM user_pairs WHERE user_lo = ? AND user_hi = ? AND version = ?",
		lo, hi, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to delete pair: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to delete pair: %w", err)
	} else if n == 0 {
		return fmt.Errorf("%w: pair %s/%s at version %d", storage.ErrVersionConflict, lo, hi, rec.Version)
	}
	return nil
}

// FindAllPairsForUser returns every record where u is debtor or creditor.
func (s *SQLiteStore) FindAllPairsForUser(ctx context.Context, u models.UserID) ([]models.PairwiseBalance, error) {
	return s.queryPairs(ctx,
		"SELECT "+pairColumns+" FROM user_pairs WHERE user_lo = ? OR user_hi = ? ORDER BY user_lo, user_hi",
		u, u,
	)
}

// FindAllPairs returns every record.
func (s *SQLiteStore) FindAllPairs(ctx context.Context) ([]models.PairwiseBalance, error) {
	return s.queryPairs(ctx, "SELECT "+pairColumns+" FROM user_pairs ORDER BY user_lo, user_hi")
}

func (s *SQLiteStore) queryPairs(ctx context.Context, query string, args ...any) ([]models.PairwiseBalance, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
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

// Package settlement turns the ledger's pairwise debts into settlement plans.
//
// The engine snapshots every pair record, derives net balances and runs one of
// the calculator's algorithms over them. Only the Simplify operations persist
// their transfers; everything else is read-only.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// ErrSearchTooLarge is returned when the exact search would run over more users
// than the engine allows.
var ErrSearchTooLarge = errors.New("settlement: too many participants for exact search")

// ErrUnknownAlgorithm is returned by ParseAlgorithm and Plan.
var ErrUnknownAlgorithm = errors.New("settlement: unknown algorithm")

const (
	DefaultSearchTimeout         = 10 * time.Second
	DefaultMaxSearchParticipants = 15
)

// Algorithm names a settlement strategy. The name is stored on every persisted
// transaction.
type Algorithm string

const (
	Greedy       Algorithm = "greedy"
	LargestFirst Algorithm = "largest-first"
)

// ParseAlgorithm parses a strategy name, ignoring case.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case Greedy, LargestFirst:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
}

func (a Algorithm) simplify(net calculator.NetBalances) ([]calculator.Transfer, error) {
	switch a {
	case Greedy:
		return calculator.SimplifyGreedy(net), nil
	case LargestFirst:
		return calculator.SimplifyLargestFirst(net), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, string(a))
	}
}

// Engine computes settlements from a store's pair records.
type Engine struct {
	store           storage.Store
	logger          *slog.Logger
	metrics         *metrics.Metrics
	searchTimeout   time.Duration
	maxParticipants int
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSearchTimeout bounds MinimumSettlementCount. Zero or less disables the bound.
func WithSearchTimeout(d time.Duration) Option {
	return func(e *Engine) { e.searchTimeout = d }
}

// WithMaxSearchParticipants caps the number of unsettled users the exact search
// accepts. Zero or less disables the cap.
func WithMaxSearchParticipants(n int) Option {
	return func(e *Engine) { e.maxParticipants = n }
}

// New creates an Engine over store.
func New(store storage.Store, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		logger:          slog.Default(),
		searchTimeout:   DefaultSearchTimeout,
		maxParticipants: DefaultMaxSearchParticipants,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NetBalances returns every user's net position: positive when owed money,
// negative when owing. Users inside the zero band are omitted.
func (e *Engine) NetBalances(ctx context.Context) (calculator.NetBalances, error) {
	pairs, err := e.store.FindAllPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot pairs: %w", err)
	}
	return calculator.CalculateNetBalances(pairs), nil
}

// Plan computes the transfers algorithm would produce without persisting them.
func (e *Engine) Plan(ctx context.Context, algorithm Algorithm) ([]calculator.Transfer, error) {
	net, err := e.NetBalances(ctx)
	if err != nil {
		return nil, err
	}
	return algorithm.simplify(net)
}

// SimplifySettlements settles all debts with the two-pointer greedy and persists
// the resulting transactions. The plan is valid but not always minimal.
func (e *Engine) SimplifySettlements(ctx context.Context) ([]models.SettlementTransaction, error) {
	return e.simplify(ctx, Greedy)
}

// SimplifySettlementsLargestFirst settles all debts by repeatedly matching the
// largest debtor with the largest creditor and persists the result.
func (e *Engine) SimplifySettlementsLargestFirst(ctx context.Context) ([]models.SettlementTransaction, error) {
	return e.simplify(ctx, LargestFirst)
}

// Simplify runs the named algorithm and persists its transactions.
func (e *Engine) Simplify(ctx context.Context, algorithm Algorithm) ([]models.SettlementTransaction, error) {
	return e.simplify(ctx, algorithm)
}

func (e *Engine) simplify(ctx context.Context, algorithm Algorithm) ([]models.SettlementTransaction, error) {
	transfers, err := e.Plan(ctx, algorithm)
	if err != nil {
		return nil, err
	}

	txns := make([]models.SettlementTransaction, len(transfers))
	err = e.store.InTx(ctx, func(ctx context.Context, tx storage.Store) error {
		for i, t := range transfers {
			rec := &models.SettlementTransaction{
				From:      t.From,
				To:        t.To,
				Amount:    t.Amount,
				Algorithm: string(algorithm),
			}
			if err := tx.SaveSettlement(ctx, rec); err != nil {
				return fmt.Errorf("failed to save settlement: %w", err)
			}
			txns[i] = *rec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.RecordSettlementRun(string(algorithm), len(txns))
	e.logger.Info("settlements simplified", "algorithm", algorithm, "transactions", len(txns))
	return txns, nil
}

// MinimumSettlementCount returns the smallest number of transfers that settles all
// debts. The search is exponential: it is refused above the participant cap and
// abandoned when the search timeout or ctx expires.
func (e *Engine) MinimumSettlementCount(ctx context.Context) (int, error) {
	net, err := e.NetBalances(ctx)
	if err != nil {
		return 0, err
	}

	if e.maxParticipants > 0 && len(net) > e.maxParticipants {
		e.metrics.RecordSearch(metrics.OutcomeTooLarge, 0)
		return 0, fmt.Errorf("%w: %d users, limit %d", ErrSearchTooLarge, len(net), e.maxParticipants)
	}

	if e.searchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.searchTimeout)
		defer cancel()
	}

	start := time.Now()
	count, err := calculator.MinTransferCount(ctx, net)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.metrics.RecordSearch(metrics.OutcomeTimeout, elapsed)
		e.logger.Warn("minimum settlement search timed out", "users", len(net), "elapsed", elapsed)
		return 0, fmt.Errorf("minimum settlement search: %w", err)
	case err != nil:
		e.metrics.RecordSearch(metrics.OutcomeError, elapsed)
		return 0, fmt.Errorf("minimum settlement search: %w", err)
	}

	e.metrics.RecordSearch(metrics.OutcomeOK, elapsed)
	e.logger.Debug("minimum settlement count computed", "users", len(net), "count", count, "elapsed", elapsed)
	return count, nil
}

// ListSettlements returns every persisted settlement transaction, oldest first.
func (e *Engine) ListSettlements(ctx context.Context) ([]models.SettlementTransaction, error) {
	txns, err := e.store.ListSettlements(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	return txns, nil
}

package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/service"
)

// run executes one command line against the SQLite database at dbPath and
// returns its standard output.
func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	root, a := newRootCommand()
	defer func() { require.NoError(t, a.teardown()) }()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--store", "sqlite", "--db-path", dbPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, dbPath string, args ...string) string {
	t.Helper()
	out, err := run(t, dbPath, args...)
	require.NoError(t, err, "splitledger %s", strings.Join(args, " "))
	return out
}

func setupEnv(t *testing.T) string {
	t.Helper()
	for _, key := range []string{
		"SPLITLEDGER_STORE", "DB_PATH", "DATABASE_URL", "DATABASE_NAME", "LOG_LEVEL",
		"SEARCH_TIMEOUT", "MAX_SEARCH_PARTICIPANTS", "METRICS_ADDR",
	} {
		t.Setenv(key, "")
	}
	return filepath.Join(t.TempDir(), "ledger.db")
}

func TestExpenseLifecycle(t *testing.T) {
	db := setupEnv(t)

	out := mustRun(t, db, "expense", "add", "--title", "Dinner", "--payer", "alice",
		"--amount", "90", "--participants", "alice,bob,carol", "--group", "trip")
	id := strings.Fields(out)[0]
	assert.Contains(t, out, "alice paid 90.00, split EQUAL")

	assert.Equal(t, "30.00\n", mustRun(t, db, "balance", "alice", "bob"))
	assert.Equal(t, "-30.00\n", mustRun(t, db, "balance", "bob", "alice"))
	assert.Equal(t, "60.00\n", mustRun(t, db, "total", "alice"))

	mustRun(t, db, "expense", "edit", id, "--split", "percentage", "--percentages", "alice=50,bob=30,carol=20")
	assert.Equal(t, "27.00\n", mustRun(t, db, "balance", "alice", "bob"))
	assert.Equal(t, "18.00\n", mustRun(t, db, "balance", "alice", "carol"))

	pairs := mustRun(t, db, "pairs")
	assert.Contains(t, pairs, "bob owes alice 27.00")
	assert.Contains(t, pairs, "carol owes alice 18.00")

	list := mustRun(t, db, "expense", "list", "--group", "trip")
	assert.Contains(t, list, id)
	assert.Contains(t, list, "PERCENTAGE")

	assert.Equal(t, "ok\n", mustRun(t, db, "check"))

	mustRun(t, db, "expense", "delete", id)
	assert.Empty(t, mustRun(t, db, "pairs"))
	_, err := run(t, db, "expense", "show", id)
	assert.Error(t, err)
}

func TestEditRequiresSplitKind(t *testing.T) {
	db := setupEnv(t)
	out := mustRun(t, db, "expense", "add", "--title", "Taxi", "--payer", "bob",
		"--amount", "20", "--participants", "alice,bob")
	id := strings.Fields(out)[0]

	_, err := run(t, db, "expense", "edit", id, "--shares", "alice=1,bob=3")
	assert.ErrorContains(t, err, "--split is required")
}

func TestAddRejectsNonFiniteWeights(t *testing.T) {
	db := setupEnv(t)

	_, err := run(t, db, "expense", "add", "--title", "Dinner", "--payer", "alice",
		"--amount", "100", "--participants", "alice,bob", "--split", "percentage", "--percentages", "alice=NaN,bob=50")
	assert.ErrorContains(t, err, "not a finite number")

	_, err = run(t, db, "expense", "add", "--title", "Dinner", "--payer", "alice",
		"--amount", "100", "--participants", "alice,bob", "--split", "shares", "--shares", "alice=1,bob=Inf")
	assert.ErrorContains(t, err, "not a finite number")

	assert.Empty(t, mustRun(t, db, "expense", "list"))
}

func TestSettle(t *testing.T) {
	db := setupEnv(t)
	mustRun(t, db, "expense", "add", "--title", "Hotel", "--payer", "alice",
		"--amount", "300", "--participants", "alice,bob,carol")
	mustRun(t, db, "expense", "add", "--title", "Fuel", "--payer", "bob",
		"--amount", "60", "--participants", "bob,carol", "--split", "exact_amount", "--amounts", "bob=20,carol=40")

	plan := mustRun(t, db, "settle", "--dry-run")
	assert.Equal(t, "carol pays alice 140.00\nbob pays alice 60.00\n", plan)
	assert.Empty(t, mustRun(t, db, "settlements"))

	out := mustRun(t, db, "settle", "--strategy", "largest-first")
	assert.Equal(t, 2, strings.Count(out, "pays alice"))

	history := mustRun(t, db, "settlements")
	assert.Equal(t, 2, strings.Count(history, "largest-first"))

	assert.Equal(t, "2\n", mustRun(t, db, "min-count", "--timeout", "5s"))

	_, err := run(t, db, "settle", "--strategy", "random")
	assert.Error(t, err)
}

func TestMigrateRequiresPostgres(t *testing.T) {
	db := setupEnv(t)
	_, err := run(t, db, "migrate")
	assert.ErrorContains(t, err, "requires the postgres store")
}

func dinnerInput() service.AddExpenseInput {
	return service.AddExpenseInput{
		Title:        "Dinner",
		Payer:        "alice",
		Amount:       money.New(90),
		Participants: []models.UserID{"alice", "bob", "carol"},
	}
}

func TestMetricsEndpoint(t *testing.T) {
	db := setupEnv(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	root, a := newRootCommand()
	defer func() { require.NoError(t, a.teardown()) }()

	var body string
	scrape := &cobra.Command{
		Use: "scrape",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.service.AddExpense(cmd.Context(), dinnerInput())
			if err != nil {
				return err
			}
			resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			b, err := io.ReadAll(resp.Body)
			body = string(b)
			return err
		},
	}
	root.AddCommand(scrape)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--store", "sqlite", "--db-path", db, "--metrics-addr", addr, "scrape"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.Contains(t, body, `splitledger_expense_postings_total{operation="apply"} 1`)
	assert.Contains(t, body, `splitledger_pair_writes_total{action="create"} 2`)
}

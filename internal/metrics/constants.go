package metrics

// Metric names
const (
	Namespace = "splitledger"

	ExpensePostingsTotal     = "expense_postings_total"
	PairWritesTotal          = "pair_writes_total"
	SettlementRunsTotal      = "settlement_runs_total"
	SettlementTransfersTotal = "settlement_transfers_total"
	SearchDurationSeconds    = "min_count_search_duration_seconds"
	SearchOutcomesTotal      = "min_count_search_outcomes_total"
	HTTPRequestsTotal        = "http_requests_total"
)

// Label keys
const (
	LabelOperation = "operation"
	LabelAction    = "action"
	LabelAlgorithm = "algorithm"
	LabelOutcome   = "outcome"
	LabelPath      = "path"
	LabelStatus    = "status"
)

// Label values
const (
	OperationApply   = "apply"
	OperationReverse = "reverse"

	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"

	OutcomeOK       = "ok"
	OutcomeTimeout  = "timeout"
	OutcomeTooLarge = "too_large"
	OutcomeError    = "error"
)

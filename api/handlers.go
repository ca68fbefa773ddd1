/*
handlers.go - HTTP API handlers for the envelope engine

PURPOSE:
  Exposes the ledger, the simulators and the reconciliation harness via a
  REST API. Handles HTTP request/response and JSON serialization, and
  delegates to the budget and factory packages.

ENDPOINTS:
  Configuration:
    GET    /api/categories                 Closed category set
    GET    /api/envelopes                  Effective envelope configs
    PUT    /api/envelopes/{category}       Store one envelope config
    GET    /api/change-sets                Stored change sets
    PUT    /api/change-sets/{month}        Store the change set for a month

  Ledger:
    POST   /api/transactions               Import (idempotent)
    GET    /api/transactions               Query by category and date range
    GET    /api/calendars/{category}       Dense delta calendar (start/end or month)

  Simulation:
    POST   /api/simulations/capped-refill  Run and store a capped-refill run
    POST   /api/simulations/slush-fund     Run and store a slush-fund run
    GET    /api/runs                       Stored runs, newest first
    GET    /api/runs/{id}                  One stored run
    POST   /api/reconcile                  First divergence vs a reference

  Scenarios:
    GET    /api/scenarios                  List demo scenarios
    POST   /api/scenarios/load             Load a demo scenario

EFFECTIVE ENVELOPES:
  Stored envelopes win. With none stored, the household defaults apply.
  A simulation request that lists envelopes uses exactly those.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input, unknown category, conflicting override
  - 404: Run or envelope not found
  - 409: Duplicate idempotency key
  - 500: Internal errors

SECURITY NOTE:
  No authentication. Run it on localhost only.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/warp/envelope-engine/budget"
	"github.com/warp/envelope-engine/factory"
	"github.com/warp/envelope-engine/generic"
	"github.com/warp/envelope-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Ledger     *budget.ImportLedger
	Planner    *budget.Planner
	Factory    *factory.InputFactory
	Categories generic.CategorySet
	Logger     *slog.Logger

	// StartEmpty is forced on for every run when set.
	StartEmpty bool

	mu              sync.RWMutex
	currentScenario string
}

// Options tunes the engine behind the handlers.
type Options struct {
	Calendar    generic.CalendarOptions
	Parallelism int
	StartEmpty  bool
	Logger      *slog.Logger
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	categories := budget.DefaultCategories()
	ledger := budget.NewImportLedger(store, categories)
	return &Handler{
		Store:      store,
		Ledger:     ledger,
		Planner:    budget.NewPlanner(ledger, opts.Calendar, opts.Parallelism, logger),
		Factory:    factory.NewInputFactory(),
		Categories: categories,
		Logger:     logger,
		StartEmpty: opts.StartEmpty,
	}
}

// =============================================================================
// CATEGORIES AND ENVELOPES
// =============================================================================

// ListCategories returns the closed category set.
// GET /api/categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	list := h.Categories.List()
	dtos := make([]CategoryDTO, len(list))
	for i, c := range list {
		dtos[i] = CategoryDTO{ID: string(c.ID), Name: c.Name, Kind: string(c.Kind)}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListEnvelopes returns the effective envelope configs.
// GET /api/envelopes
func (h *Handler) ListEnvelopes(w http.ResponseWriter, r *http.Request) {
	envelopes, source, err := h.effectiveEnvelopes(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list envelopes", err)
		return
	}

	dtos := make([]EnvelopeDTO, 0, len(envelopes))
	for _, cfg := range envelopes {
		dtos = append(dtos, EnvelopeDTO{
			Category:      string(cfg.Category),
			Capacity:      cfg.Capacity,
			MonthlyRefill: cfg.MonthlyRefill,
			DailyRefill:   cfg.DailyRefill,
			Critical:      cfg.Critical,
			Source:        source,
		})
	}
	sort.Slice(dtos, func(i, j int) bool { return dtos[i].Category < dtos[j].Category })
	writeJSON(w, http.StatusOK, dtos)
}

// PutEnvelope stores the config of one category.
// PUT /api/envelopes/{category}
func (h *Handler) PutEnvelope(w http.ResponseWriter, r *http.Request) {
	category := generic.CategoryID(chi.URLParam(r, "category"))
	if err := h.Categories.Validate(category); err != nil {
		writeDomainError(w, "Unknown category", err)
		return
	}

	var ej factory.EnvelopeJSON
	if err := json.NewDecoder(r.Body).Decode(&ej); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ej.Category = string(category)

	cfg, err := h.Factory.Envelope(ej)
	if err != nil {
		writeDomainError(w, "Invalid envelope", err)
		return
	}
	if err := h.Store.SaveEnvelope(r.Context(), cfg); err != nil {
		writeDomainError(w, "Failed to save envelope", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.ToJSON(cfg))
}

// effectiveEnvelopes returns the stored envelopes, or the defaults when
// none are stored.
func (h *Handler) effectiveEnvelopes(ctx context.Context) (map[generic.CategoryID]generic.EnvelopeConfig, string, error) {
	stored, err := h.Store.ListEnvelopes(ctx)
	if err != nil {
		return nil, "", err
	}
	if len(stored) > 0 {
		return stored, "stored", nil
	}
	return budget.DefaultEnvelopes(), "default", nil
}

// =============================================================================
// CHANGE SETS
// =============================================================================

// ListChangeSets returns stored change sets keyed by month.
// GET /api/change-sets
func (h *Handler) ListChangeSets(w http.ResponseWriter, r *http.Request) {
	sets, err := h.Store.ListChangeSets(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list change sets", err)
		return
	}
	writeJSON(w, http.StatusOK, sets)
}

// PutChangeSet stores the change set applied on entry to a month.
// PUT /api/change-sets/{month}
func (h *Handler) PutChangeSet(w http.ResponseWriter, r *http.Request) {
	month := chi.URLParam(r, "month")

	var raw map[string]generic.Override
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sets, err := h.Factory.ChangeSets(map[string]map[string]generic.Override{month: raw})
	if err != nil {
		writeDomainError(w, "Invalid change set", err)
		return
	}
	for m, cs := range sets {
		for category := range cs {
			if err := h.Categories.Validate(category); err != nil {
				writeDomainError(w, "Invalid change set", err)
				return
			}
		}
		if err := h.Store.SaveChangeSet(r.Context(), m, cs); err != nil {
			writeDomainError(w, "Failed to save change set", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, sets)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// ImportTransactions appends transactions, skipping ones already imported.
// POST /api/transactions
func (h *Handler) ImportTransactions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}
	txs, err := h.Factory.ParseTransactions(body)
	if err != nil {
		writeDomainError(w, "Invalid transactions", err)
		return
	}

	res, err := h.Ledger.Import(r.Context(), txs, nil)
	if err != nil {
		writeDomainError(w, "Failed to import transactions", err)
		return
	}
	h.Logger.Info("transactions imported", "added", res.Added, "skipped", res.Skipped)

	status := http.StatusCreated
	if res.Added == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// ListTransactions returns transactions, optionally filtered.
// GET /api/transactions?category=&from=&to=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	from, to, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeDomainError(w, "Invalid date range", err)
		return
	}

	var txs []generic.Transaction
	category := generic.CategoryID(q.Get("category"))
	switch {
	case category != "":
		if err := h.Categories.Validate(category); err != nil {
			writeDomainError(w, "Unknown category", err)
			return
		}
		txs, err = h.Ledger.TransactionsFor(ctx, category)
	case from != nil:
		txs, err = h.Ledger.TransactionsInRange(ctx, *from, *to)
	default:
		txs, err = h.Ledger.Transactions(ctx)
	}
	if err != nil {
		writeDomainError(w, "Failed to load transactions", err)
		return
	}

	resp := TransactionListResponse{Transactions: []generic.Transaction{}}
	for _, tx := range txs {
		if from == nil || (tx.Date.AfterOrEqual(*from) && tx.Date.BeforeOrEqual(*to)) {
			resp.Transactions = append(resp.Transactions, tx)
		}
	}

	if category != "" {
		at := generic.Today()
		if to != nil {
			at = *to
		}
		net, err := h.Ledger.NetAt(ctx, category, at)
		if err != nil {
			writeDomainError(w, "Failed to compute net", err)
			return
		}
		resp.Net = &net
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCalendar returns the dense delta calendar of one category. The window
// is start..end, or one calendar month, or by default every day the
// category's transactions touch.
// GET /api/calendars/{category}?start=&end=
// GET /api/calendars/{category}?month=YYYY-MM
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category := generic.CategoryID(chi.URLParam(r, "category"))
	if err := h.Categories.Validate(category); err != nil {
		writeDomainError(w, "Unknown category", err)
		return
	}

	txs, err := h.Ledger.TransactionsFor(ctx, category)
	if err != nil {
		writeDomainError(w, "Failed to load transactions", err)
		return
	}

	q := r.URL.Query()
	start, end, err := parseRange(q.Get("start"), q.Get("end"))
	if err != nil {
		writeDomainError(w, "Invalid date range", err)
		return
	}
	var window generic.Period
	if month := q.Get("month"); month != "" {
		if start != nil {
			writeError(w, http.StatusBadRequest, "give month or start/end, not both", nil)
			return
		}
		m, err := generic.ParseMonth(month)
		if err != nil {
			writeDomainError(w, "Invalid month", err)
			return
		}
		window = m.Period()
	} else if start != nil {
		window = generic.Period{Start: *start, End: *end}
	}

	if !window.Start.IsZero() {
		touching := txs[:0:0]
		for _, tx := range txs {
			if tx.Overlaps(window) {
				touching = append(touching, tx)
			}
		}
		txs = touching
	} else {
		var ok bool
		if window, ok = generic.GlobalPeriod(txs); !ok {
			writeError(w, http.StatusNotFound, "No transactions for category", nil)
			return
		}
	}

	cal, err := generic.BuildDeltaCalendar(category, txs, window, h.Planner.Engine.Calendar)
	if err != nil {
		writeDomainError(w, "Failed to build calendar", err)
		return
	}

	dto := CalendarDTO{
		Category:  string(category),
		Period:    cal.Period,
		Leading:   cal.Leading,
		Total:     cal.Total(),
		Truncated: cal.Truncated,
		Days:      make([]CalendarDayDTO, cal.Len()),
	}
	for i, day := range cal.Days {
		dto.Days[i] = CalendarDayDTO{
			Date:       day,
			Delta:      cal.Deltas[i],
			SingleDay:  cal.SingleDayDates.Has(day),
			AmortStart: cal.AmortStartDates.Has(day),
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// SIMULATIONS AND RUNS
// =============================================================================

// Simulate returns a handler running one policy and storing the run.
// POST /api/simulations/{policy}
func (h *Handler) Simulate(policy generic.Policy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var sj factory.SimulationJSON
		if err := json.NewDecoder(r.Body).Decode(&sj); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		sj.Policy = string(policy)

		in, err := h.Factory.FromJSON(sj)
		if err != nil {
			writeDomainError(w, "Invalid simulation input", err)
			return
		}
		if len(sj.Envelopes) == 0 {
			if in.Envelopes, _, err = h.effectiveEnvelopes(ctx); err != nil {
				writeDomainError(w, "Failed to load envelopes", err)
				return
			}
		}
		in.StartEmpty = in.StartEmpty || h.StartEmpty

		if policy == generic.PolicySlushFund && len(sj.ChangeSets) == 0 {
			if err := h.withStoredChangeSets(ctx, &in); err != nil {
				writeDomainError(w, "Failed to prepare simulation", err)
				return
			}
		}

		result, err := h.Planner.Simulate(ctx, in)
		if err != nil {
			writeDomainError(w, "Simulation failed", err)
			return
		}

		run := budget.NewRun(result)
		if err := h.Store.SaveRun(ctx, run); err != nil {
			writeDomainError(w, "Failed to save run", err)
			return
		}
		h.Logger.Info("run stored", "run_id", run.ID, "policy", run.Policy)
		writeJSON(w, http.StatusCreated, run)
	}
}

// withStoredChangeSets resolves the window first so that only stored change
// sets inside it are applied.
func (h *Handler) withStoredChangeSets(ctx context.Context, in *generic.SimulationInput) error {
	stored, err := h.Store.ListChangeSets(ctx)
	if err != nil || len(stored) == 0 {
		return err
	}
	prep, err := h.Planner.Engine.Prepare(ctx, *in)
	if err != nil {
		return err
	}
	in.Period = &prep.Period
	in.Transactions = prep.Transactions

	months := make(map[generic.Month]bool)
	for _, m := range prep.Period.Months() {
		months[m] = true
	}
	in.ChangeSets = make(map[generic.Month]generic.ChangeSet)
	for m, cs := range stored {
		if months[m] {
			in.ChangeSets[m] = cs
		}
	}
	return nil
}

// ListRuns returns stored run summaries.
// GET /api/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRuns(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun returns one stored run.
// GET /api/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Reconcile compares a run or an inline dataset with a reference.
// POST /api/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Reference) == 0 {
		writeError(w, http.StatusBadRequest, "reference is required", nil)
		return
	}
	if (req.RunID == "") == (len(req.Computed) == 0) {
		writeError(w, http.StatusBadRequest, "exactly one of run_id and computed is required", nil)
		return
	}

	reference, err := factory.ParseDataset(req.Reference)
	if err != nil {
		writeDomainError(w, "Invalid reference dataset", err)
		return
	}

	var computed generic.Dataset
	if req.RunID != "" {
		run, err := h.Store.GetRun(r.Context(), req.RunID)
		if err != nil {
			writeDomainError(w, "Failed to get run", err)
			return
		}
		computed = run.Dataset
	} else if computed, err = factory.ParseDataset(req.Computed); err != nil {
		writeDomainError(w, "Invalid computed dataset", err)
		return
	}

	diff := generic.Reconcile(computed, reference)
	resp := ReconcileResponse{Match: diff == nil, Diff: diff, Message: "datasets match"}
	if diff != nil {
		resp.Message = diff.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

// parseRange parses an optional inclusive date range. Both bounds or
// neither must be given.
func parseRange(from, to string) (*generic.TimePoint, *generic.TimePoint, error) {
	if from == "" && to == "" {
		return nil, nil, nil
	}
	if from == "" || to == "" {
		return nil, nil, &generic.InvalidInputError{Field: "range", Reason: "give both bounds or neither"}
	}
	f, err := generic.ParseDate(from)
	if err != nil {
		return nil, nil, &generic.InvalidInputError{Field: "from", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", from)}
	}
	t, err := generic.ParseDate(to)
	if err != nil {
		return nil, nil, &generic.InvalidInputError{Field: "to", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", to)}
	}
	if t.Before(f) {
		return nil, nil, generic.ErrInvalidPeriod
	}
	return &f, &t, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case generic.IsClientError(err):
		status, code = http.StatusBadRequest, "invalid_input"
	case generic.IsNotFound(err):
		status, code = http.StatusNotFound, "not_found"
	case generic.IsConflict(err):
		status, code = http.StatusConflict, "conflict"
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: err.Error()})
}

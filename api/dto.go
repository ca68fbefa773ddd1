/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Engine types that
  already carry json tags (SimulationRun, RunSummary, Diff, Transaction)
  are returned as-is; the types here cover views the engine has no type
  for.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

REQUEST BODIES PARSED BY THE FACTORY:
  PUT  /api/envelopes/{category}      factory.EnvelopeJSON
  POST /api/transactions              []factory.TransactionJSON
  POST /api/simulations/{policy}      factory.SimulationJSON
  PUT  /api/change-sets/{month}       map[category]generic.Override

SEE ALSO:
  - handlers.go: Uses these types
  - factory/input.go: JSON schema types
*/
package api

import (
	"encoding/json"

	"github.com/warp/envelope-engine/generic"
)

// =============================================================================
// CATEGORIES AND ENVELOPES
// =============================================================================

// CategoryDTO represents a category in API responses.
type CategoryDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// EnvelopeDTO represents an envelope config in API responses.
type EnvelopeDTO struct {
	Category      string        `json:"category"`
	Capacity      generic.Money `json:"capacity"`
	MonthlyRefill generic.Money `json:"monthly_refill"`
	DailyRefill   generic.Money `json:"daily_refill"`
	Critical      bool          `json:"critical"`
	Source        string        `json:"source"` // "stored" or "default"
}

// =============================================================================
// TRANSACTIONS AND CALENDARS
// =============================================================================

// TransactionListResponse is the transaction query result. Net is set when
// the query names one category.
type TransactionListResponse struct {
	Transactions []generic.Transaction `json:"transactions"`
	Net          *generic.Money        `json:"net,omitempty"`
}

// CalendarDTO is one category's delta calendar. Leading and Truncated are
// amortized shares that fall before and after the window.
type CalendarDTO struct {
	Category  string           `json:"category"`
	Period    generic.Period   `json:"period"`
	Leading   generic.Money    `json:"leading"`
	Total     generic.Money    `json:"total"`
	Truncated generic.Money    `json:"truncated"`
	Days      []CalendarDayDTO `json:"days"`
}

// CalendarDayDTO is one day of a delta calendar.
type CalendarDayDTO struct {
	Date       generic.TimePoint `json:"date"`
	Delta      generic.Money     `json:"delta"`
	SingleDay  bool              `json:"single_day,omitempty"`
	AmortStart bool              `json:"amort_start,omitempty"`
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// ReconcileRequest compares a computed dataset with a reference. The
// computed side is either a stored run or an inline dataset.
type ReconcileRequest struct {
	RunID     string          `json:"run_id,omitempty"`
	Computed  json.RawMessage `json:"computed,omitempty"`
	Reference json.RawMessage `json:"reference"`
}

// ReconcileResponse reports the first divergence, if any.
type ReconcileResponse struct {
	Match   bool          `json:"match"`
	Diff    *generic.Diff `json:"diff,omitempty"`
	Message string        `json:"message"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Policy      string `json:"policy"` // policy the scenario is built to show
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario stores its envelopes, change sets and
	transactions; running the named policy afterwards shows the feature.

AVAILABLE SCENARIOS:

	rent-refill:        Rent paid on the 1st, the envelope refills 61.67/day
	amortized-purchase: Annual insurance and a laptop spread over many days
	rationed-month:     Income too small for every request, slush is rationed

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Save the scenario's envelopes and change sets
 3. Import its transactions through the import ledger

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "rationed-month"}

	POST /api/simulations/slush-fund

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Simulation endpoints
  - budget/presets.go: Envelope shapes used here
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/envelope-engine/budget"
	"github.com/warp/envelope-engine/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	envelopes    []generic.EnvelopeConfig
	changeSets   map[generic.Month]generic.ChangeSet
	transactions []generic.Transaction
}

func on(year int, month time.Month, day int) generic.TimePoint {
	return generic.NewTimePoint(year, month, day)
}

func spend(category generic.CategoryID, at generic.TimePoint, value generic.Money, duration int, desc string) generic.Transaction {
	return generic.Transaction{Date: at, Category: category, Value: value, Duration: duration, Description: desc}
}

func scenarios() []scenario {
	critical := true
	return []scenario{
		{
			ScenarioDTO: ScenarioDTO{
				ID:          "rent-refill",
				Name:        "Rent Refill",
				Description: "Rent of 1850.00 paid on the 1st; the envelope climbs back 61.67 a day and is full again on day 30",
				Policy:      string(generic.PolicyCappedRefill),
			},
			envelopes: []generic.EnvelopeConfig{
				budget.Bill(budget.Rent, generic.Dollars(1850)),
			},
			transactions: []generic.Transaction{
				spend(budget.Rent, on(2025, time.January, 1), generic.Dollars(-1850), 1, "Landlord"),
				spend(budget.Rent, on(2025, time.February, 1), generic.Dollars(-1850), 1, "Landlord"),
			},
		},
		{
			ScenarioDTO: ScenarioDTO{
				ID:          "amortized-purchase",
				Name:        "Amortized Purchase",
				Description: "Annual car insurance spread over 365 days and a laptop spread over 90 days",
				Policy:      string(generic.PolicyCappedRefill),
			},
			envelopes: []generic.EnvelopeConfig{
				budget.Bill(budget.Insurance, generic.Dollars(120)),
				budget.Flexible(budget.Shopping, generic.Dollars(150)),
			},
			transactions: []generic.Transaction{
				spend(budget.Insurance, on(2025, time.January, 10), generic.Dollars(-1440), 365, "Annual car insurance"),
				spend(budget.Shopping, on(2025, time.February, 1), generic.Dollars(-1200), 90, "Laptop"),
				spend(budget.Shopping, on(2025, time.February, 14), generic.Dollars(-35), 1, "Flowers"),
			},
		},
		{
			ScenarioDTO: ScenarioDTO{
				ID:          "rationed-month",
				Name:        "Rationed Month",
				Description: "Gifts and entertainment are emptied but only 200.00 comes in; each gets the same share of its request",
				Policy:      string(generic.PolicySlushFund),
			},
			envelopes: []generic.EnvelopeConfig{
				budget.Flexible(budget.Gifts, generic.Dollars(100)),
				budget.Flexible(budget.Entertainment, generic.Dollars(300)),
				budget.PassThrough(budget.Salary),
			},
			changeSets: map[generic.Month]generic.ChangeSet{
				generic.NewMonth(2025, time.February): {
					budget.Entertainment: {Critical: &critical},
				},
			},
			transactions: []generic.Transaction{
				spend(budget.Gifts, on(2025, time.January, 6), generic.Dollars(-100), 1, "Birthday present"),
				spend(budget.Entertainment, on(2025, time.January, 11), generic.Dollars(-300), 1, "Concert tickets"),
				spend(budget.Salary, on(2025, time.January, 31), generic.Dollars(200), 1, "Side job"),
				spend(budget.Entertainment, on(2025, time.February, 8), generic.Dollars(-120), 1, "Cinema"),
				spend(budget.Salary, on(2025, time.February, 28), generic.Dollars(400), 1, "Side job"),
			},
		},
	}
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios() {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	all := scenarios()
	dtos := make([]ScenarioDTO, len(all))
	for i, s := range all {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	if s, ok := findScenario(current); ok {
		writeJSON(w, http.StatusOK, s.ScenarioDTO)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err := h.loadScenario(r.Context(), s); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADER
// =============================================================================

func (h *Handler) loadScenario(ctx context.Context, s scenario) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.currentScenario = ""

	for _, cfg := range s.envelopes {
		if err := h.Store.SaveEnvelope(ctx, cfg); err != nil {
			return fmt.Errorf("envelope %s: %w", cfg.Category, err)
		}
	}
	for month, cs := range s.changeSets {
		if err := h.Store.SaveChangeSet(ctx, month, cs); err != nil {
			return fmt.Errorf("change set %s: %w", month, err)
		}
	}
	if _, err := h.Ledger.Import(ctx, s.transactions, nil); err != nil {
		return fmt.Errorf("transactions: %w", err)
	}

	h.currentScenario = s.ID
	h.Logger.Info("scenario loaded", "scenario", s.ID, "transactions", len(s.transactions))
	return nil
}

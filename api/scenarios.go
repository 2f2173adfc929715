/*
scenarios.go - Seed scenarios for demos and manual testing

PURPOSE:

	Provides pre-built scenarios that populate the signed-in account with
	realistic data: groups, habits, rewards, and a history of completions
	and redemptions.

AVAILABLE SCENARIOS (scenarios/*.yaml):

	fresh-start:      One group, two habits, one reward, no history
	morning-routine:  Two groups, a week of completions, one redemption
	monthly-goals:    Monthly habits feeding the global pool

HOW SCENARIOS WORK:
 1. Every key in the file gets a fresh UUID, so a scenario can be loaded
    into several accounts, or twice into one
 2. Groups, habits and rewards are upserted through the account's store
 3. Completions and redemptions are appended as ledger batches, dated
    days_ago days before now
 4. The cache is force-refreshed

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "morning-routine"}

ADDING NEW SCENARIOS:

	Drop a YAML file into scenarios/. The id must be unique.

SEE ALSO:
  - handlers.go: Handler and session
  - factory/frequency.go: Frequency definitions
*/
package api

import (
	"context"
	"embed"
	"fmt"
	"net/http"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/warp/habit-flywheel/factory"
	"github.com/warp/habit-flywheel/flywheel"
	"github.com/warp/habit-flywheel/logger"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

//go:embed scenarios/*.yaml
var scenarioFS embed.FS

// Scenario is a seed data set as written in scenarios/*.yaml.
type Scenario struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	Groups []struct {
		Key  string `yaml:"key"`
		Name string `yaml:"name"`
	} `yaml:"groups"`

	Habits []struct {
		Key       string                `yaml:"key"`
		Name      string                `yaml:"name"`
		Group     string                `yaml:"group"`
		Energy    int                   `yaml:"energy"`
		Frequency factory.FrequencyJSON `yaml:"frequency"`
	} `yaml:"habits"`

	Rewards []struct {
		Key         string `yaml:"key"`
		Name        string `yaml:"name"`
		Group       string `yaml:"group"`
		Cost        int    `yaml:"cost"`
		Description string `yaml:"description"`
	} `yaml:"rewards"`

	Completions []struct {
		Habit   string `yaml:"habit"`
		DaysAgo int    `yaml:"days_ago"`
	} `yaml:"completions"`

	Redemptions []struct {
		Reward  string `yaml:"reward"`
		DaysAgo int    `yaml:"days_ago"`
	} `yaml:"redemptions"`
}

// LoadScenarios parses every embedded scenario, sorted by id.
func LoadScenarios() ([]Scenario, error) {
	entries, err := scenarioFS.ReadDir("scenarios")
	if err != nil {
		return nil, err
	}

	var out []Scenario
	for _, e := range entries {
		data, err := scenarioFS.ReadFile(path.Join("scenarios", e.Name()))
		if err != nil {
			return nil, err
		}
		var sc Scenario
		if err := yaml.Unmarshal(data, &sc); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", e.Name(), err)
		}
		if sc.ID == "" {
			return nil, fmt.Errorf("scenario %s: missing id", e.Name())
		}
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindScenario returns the embedded scenario with the given id.
func FindScenario(id string) (Scenario, bool) {
	all, err := LoadScenarios()
	if err != nil {
		logger.Error("failed to parse scenarios", "error", err)
		return Scenario{}, false
	}
	for _, sc := range all {
		if sc.ID == id {
			return sc, true
		}
	}
	return Scenario{}, false
}

// DTO describes the scenario for listings.
func (sc Scenario) DTO() ScenarioDTO {
	return ScenarioDTO{ID: sc.ID, Name: sc.Name, Description: sc.Description}
}

// Apply writes the scenario into remote. Keys are mapped to ids from newID;
// ledger entries are dated relative to now.
func (sc Scenario) Apply(ctx context.Context, remote flywheel.RemoteStore, now time.Time, newID func() string) error {
	groups := map[string]flywheel.GroupID{"": flywheel.GlobalPool}
	habits := map[string]flywheel.Habit{}
	rewards := map[string]flywheel.Reward{}

	groupOf := func(key string) (flywheel.GroupID, error) {
		id, ok := groups[key]
		if !ok {
			return "", fmt.Errorf("scenario %s: unknown group %q", sc.ID, key)
		}
		return id, nil
	}

	for _, g := range sc.Groups {
		id := flywheel.GroupID(newID())
		if err := remote.UpsertGroup(ctx, flywheel.Group{ID: id, Name: g.Name}); err != nil {
			return err
		}
		groups[g.Key] = id
	}

	for _, hd := range sc.Habits {
		gid, err := groupOf(hd.Group)
		if err != nil {
			return err
		}
		freq, err := hd.Frequency.ToFrequency()
		if err != nil {
			return fmt.Errorf("scenario %s: habit %q: %w", sc.ID, hd.Key, err)
		}
		h := flywheel.Habit{
			ID:          flywheel.HabitID(newID()),
			Name:        hd.Name,
			GroupID:     gid,
			Frequency:   freq,
			EnergyValue: hd.Energy,
		}
		if err := remote.UpsertHabit(ctx, h); err != nil {
			return err
		}
		habits[hd.Key] = h
	}

	for _, rd := range sc.Rewards {
		gid, err := groupOf(rd.Group)
		if err != nil {
			return err
		}
		r := flywheel.Reward{
			ID:          flywheel.RewardID(newID()),
			Name:        rd.Name,
			GroupID:     gid,
			EnergyCost:  rd.Cost,
			Description: rd.Description,
		}
		if err := remote.UpsertReward(ctx, r); err != nil {
			return err
		}
		rewards[rd.Key] = r
	}

	for _, c := range sc.Completions {
		h, ok := habits[c.Habit]
		if !ok {
			return fmt.Errorf("scenario %s: unknown habit %q", sc.ID, c.Habit)
		}
		err := remote.AppendCompletion(ctx, flywheel.CompletionBatch{
			HabitID: h.ID,
			GroupID: h.GroupID,
			Amount:  h.EnergyValue,
			Reason:  flywheel.CompletionReason(h.Name),
			At:      now.AddDate(0, 0, -c.DaysAgo),
		})
		if err != nil {
			return err
		}
	}

	for _, rd := range sc.Redemptions {
		r, ok := rewards[rd.Reward]
		if !ok {
			return fmt.Errorf("scenario %s: unknown reward %q", sc.ID, rd.Reward)
		}
		err := remote.AppendRedemption(ctx, flywheel.RedemptionBatch{
			RewardID:   r.ID,
			Name:       r.Name,
			GroupID:    r.GroupID,
			EnergyCost: r.EnergyCost,
			At:         now.AddDate(0, 0, -rd.DaysAgo),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	all, err := LoadScenarios()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read scenarios", err)
		return
	}
	dtos := make([]ScenarioDTO, len(all))
	for i, sc := range all {
		dtos[i] = sc.DTO()
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the last scenario loaded into this session, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	if sc, ok := FindScenario(current); ok {
		writeJSON(w, http.StatusOK, sc.DTO())
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario seeds the signed-in account and force-refreshes the cache.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	sc, ok := FindScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}

	sess, err := h.State.Engine().Session()
	if err != nil {
		writeDomainError(w, "Sign in before loading a scenario", err)
		return
	}

	ctx := r.Context()
	if err := sc.Apply(ctx, sess.Remote(), h.State.Now(), uuid.NewString); err != nil {
		writeDomainError(w, "Failed to load scenario", err)
		return
	}
	if err := h.State.Refresh(ctx, true); err != nil {
		writeDomainError(w, "Scenario loaded but refresh failed", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = sc.ID
	h.mu.Unlock()

	logger.Info("scenario loaded", "scenario", sc.ID)
	writeJSON(w, http.StatusOK, h.stateDTO())
}

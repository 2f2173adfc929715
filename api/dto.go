/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model in package flywheel from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Session:   SessionRequest, StateDTO
  Groups:    GroupDTO, GroupRequest
  Habits:    HabitDTO, FrequencyDTO, HabitRequest, HabitPatchRequest
  Rewards:   RewardDTO, RewardRequest, RewardPatchRequest
  Ledger:    CompletionDTO, EnergyEventDTO, RedemptionDTO, HistoryResponse
  Energy:    EnergyDTO
  Scenarios: ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done by the facade, not in DTOs. DTOs are pure data carriers.
  Timestamps are RFC 3339 strings; dates are YYYY-MM-DD in the server's
  local zone.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/frequency.go: FrequencyJSON wire form
*/
package api

import (
	"time"

	"github.com/warp/habit-flywheel/app"
	"github.com/warp/habit-flywheel/cache"
	"github.com/warp/habit-flywheel/factory"
	"github.com/warp/habit-flywheel/flywheel"
	"github.com/warp/habit-flywheel/rewards"
)

// =============================================================================
// SESSION
// =============================================================================

// SessionRequest signs an account in.
type SessionRequest struct {
	AccountID string `json:"account_id"`
}

// StateDTO describes the cache.
type StateDTO struct {
	AccountID string `json:"account_id,omitempty"`
	Status    string `json:"status"`
	Loaded    bool   `json:"loaded"`
	FetchedAt string `json:"fetched_at,omitempty"`
	Version   uint64 `json:"version"`
	LastError string `json:"last_error,omitempty"`
	Scenario  string `json:"scenario,omitempty"`

	Groups  int `json:"groups"`
	Habits  int `json:"habits"`
	Rewards int `json:"rewards"`
}

// =============================================================================
// GROUPS
// =============================================================================

// GroupDTO is a group with its current balance.
type GroupDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Energy int    `json:"energy"`
}

// GroupRequest creates or renames a group.
type GroupRequest struct {
	Name string `json:"name"`
}

// =============================================================================
// HABITS
// =============================================================================

// FrequencyDTO is the wire form of a frequency plus its description.
type FrequencyDTO struct {
	factory.FrequencyJSON
	Description string `json:"description,omitempty"`
}

// HabitDTO represents a habit in API responses.
type HabitDTO struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	GroupID     string       `json:"group_id,omitempty"`
	Frequency   FrequencyDTO `json:"frequency"`
	EnergyValue int          `json:"energy_value"`
	Completions int          `json:"completions"`
}

// HabitRequest creates a habit. An empty group_id targets the global pool.
type HabitRequest struct {
	Name        string                `json:"name"`
	GroupID     string                `json:"group_id"`
	Frequency   factory.FrequencyJSON `json:"frequency"`
	EnergyValue int                   `json:"energy_value"`
}

// HabitPatchRequest updates the fields present in the body.
type HabitPatchRequest struct {
	Name        *string                `json:"name"`
	GroupID     *string                `json:"group_id"`
	Frequency   *factory.FrequencyJSON `json:"frequency"`
	EnergyValue *int                   `json:"energy_value"`
}

// =============================================================================
// REWARDS
// =============================================================================

// RewardDTO represents a reward in API responses. Progress is the share of
// the cost the scope balance covers, as a decimal string out of 100.
type RewardDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	GroupID     string `json:"group_id,omitempty"`
	EnergyCost  int    `json:"energy_cost"`
	Description string `json:"description,omitempty"`
	Redeemed    bool   `json:"redeemed"`
	RedeemedAt  string `json:"redeemed_at,omitempty"`
	Progress    string `json:"progress"`
}

// RewardRequest creates a reward.
type RewardRequest struct {
	Name        string `json:"name"`
	GroupID     string `json:"group_id"`
	EnergyCost  int    `json:"energy_cost"`
	Description string `json:"description"`
}

// RewardPatchRequest updates the fields present in the body.
type RewardPatchRequest struct {
	Name        *string `json:"name"`
	GroupID     *string `json:"group_id"`
	EnergyCost  *int    `json:"energy_cost"`
	Description *string `json:"description"`
}

// =============================================================================
// LEDGER
// =============================================================================

// CompletionDTO is one history completion entry.
type CompletionDTO struct {
	HabitID   string `json:"habit_id"`
	HabitName string `json:"habit_name,omitempty"`
	GroupID   string `json:"group_id,omitempty"`
	GroupName string `json:"group_name,omitempty"`
	Timestamp string `json:"timestamp"`
	Orphaned  bool   `json:"orphaned,omitempty"`
}

// EnergyEventDTO is one energy ledger entry. Amount is signed.
type EnergyEventDTO struct {
	GroupID   string `json:"group_id,omitempty"`
	Amount    int    `json:"amount"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

// RedemptionDTO is one redemption ledger entry.
type RedemptionDTO struct {
	RewardID   string `json:"reward_id"`
	Name       string `json:"name"`
	GroupID    string `json:"group_id,omitempty"`
	EnergyCost int    `json:"energy_cost"`
	Timestamp  string `json:"timestamp"`
}

// DayDTO is one local day of history entries.
type DayDTO[T any] struct {
	Date    string `json:"date"`
	Entries []T    `json:"entries"`
}

// HistoryResponse is the ledger history, newest day first.
type HistoryResponse struct {
	Completions []DayDTO[CompletionDTO]  `json:"completions"`
	Energy      []DayDTO[EnergyEventDTO] `json:"energy"`
	Redemptions []DayDTO[RedemptionDTO]  `json:"redemptions"`
}

// =============================================================================
// ENERGY
// =============================================================================

// EnergyDTO holds every balance of the account.
type EnergyDTO struct {
	Groups map[string]int `json:"groups"`
	Global int            `json:"global"`
	Total  int            `json:"total"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a seed scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest loads a scenario into the signed-in account.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string { return t.Format(time.RFC3339) }

func toStateDTO(snap *cache.Snapshot, status cache.State, lastErr error) StateDTO {
	dto := StateDTO{
		Status:  status.String(),
		Loaded:  snap.Loaded(),
		Version: snap.Version,
		Groups:  len(snap.Data.Groups),
		Habits:  len(snap.Data.Habits),
		Rewards: len(snap.Data.Rewards),
	}
	if snap.Loaded() {
		dto.FetchedAt = formatTime(snap.FetchedAt)
	}
	if lastErr != nil {
		dto.LastError = lastErr.Error()
	}
	return dto
}

func toGroupDTO(g flywheel.Group, b flywheel.Balances) GroupDTO {
	return GroupDTO{ID: string(g.ID), Name: g.Name, Energy: b.Group(g.ID)}
}

func toHabitDTO(h flywheel.Habit, completions int) HabitDTO {
	return HabitDTO{
		ID:      string(h.ID),
		Name:    h.Name,
		GroupID: string(h.GroupID),
		Frequency: FrequencyDTO{
			FrequencyJSON: factory.FromFrequency(h.Frequency),
			Description:   h.Frequency.Description,
		},
		EnergyValue: h.EnergyValue,
		Completions: completions,
	}
}

func toRewardDTO(r flywheel.Reward, b flywheel.Balances) RewardDTO {
	dto := RewardDTO{
		ID:          string(r.ID),
		Name:        r.Name,
		GroupID:     string(r.GroupID),
		EnergyCost:  r.EnergyCost,
		Description: r.Description,
		Redeemed:    r.Redeemed,
		Progress:    rewards.Progress(b.Group(r.GroupID), r.EnergyCost).String(),
	}
	if r.RedeemedAt != nil {
		dto.RedeemedAt = formatTime(*r.RedeemedAt)
	}
	return dto
}

func toRedemptionDTO(r flywheel.Redemption) RedemptionDTO {
	return RedemptionDTO{
		RewardID:   string(r.RewardID),
		Name:       r.Name,
		GroupID:    string(r.GroupID),
		EnergyCost: r.EnergyCost,
		Timestamp:  formatTime(r.Timestamp),
	}
}

func toEnergyEventDTO(e flywheel.EnergyEvent) EnergyEventDTO {
	return EnergyEventDTO{
		GroupID:   string(e.GroupID),
		Amount:    e.Signed(),
		Kind:      string(e.Kind),
		Reason:    e.Reason,
		Timestamp: formatTime(e.Timestamp),
	}
}

func toCompletionDTO(c app.CompletionEntry) CompletionDTO {
	return CompletionDTO{
		HabitID:   string(c.HabitID),
		HabitName: c.HabitName,
		GroupID:   string(c.GroupID),
		GroupName: c.GroupName,
		Timestamp: formatTime(c.Timestamp),
		Orphaned:  c.Orphaned,
	}
}

func toDays[T, D any](days []app.Day[T], conv func(T) D) []DayDTO[D] {
	out := make([]DayDTO[D], len(days))
	for i, d := range days {
		entries := make([]D, len(d.Entries))
		for j, e := range d.Entries {
			entries[j] = conv(e)
		}
		out[i] = DayDTO[D]{Date: d.Date, Entries: entries}
	}
	return out
}

func toHistoryResponse(h app.History) HistoryResponse {
	return HistoryResponse{
		Completions: toDays(h.Completions, toCompletionDTO),
		Energy:      toDays(h.Energy, toEnergyEventDTO),
		Redemptions: toDays(h.Redemptions, toRedemptionDTO),
	}
}

func toEnergyDTO(b flywheel.Balances) EnergyDTO {
	groups := make(map[string]int, len(b.PerGroup))
	for id, v := range b.PerGroup {
		groups[string(id)] = v
	}
	return EnergyDTO{Groups: groups, Global: b.Global, Total: b.Total()}
}

/*
handlers.go - HTTP API handlers for the habit flywheel

PURPOSE:
  Exposes the application state facade via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to package app.

ENDPOINTS:
  Session:
    POST   /api/session                 Sign an account in (forced load)
    DELETE /api/session                 Sign out, clear the cache
    POST   /api/refresh?force=bool      Reload unless fresh
    GET    /api/state                   Cache status

  Groups (Tier A):
    GET    /api/groups                  List groups with balances
    POST   /api/groups                  Create group
    PUT    /api/groups/{id}             Rename group
    DELETE /api/groups/{id}             Delete group (blocked while referenced)

  Habits (Tier B):
    GET    /api/habits?group=           List habits
    GET    /api/habits/today            Habits still due in their window
    POST   /api/habits                  Create habit
    PUT    /api/habits/{id}             Update habit
    DELETE /api/habits/{id}             Delete habit
    POST   /api/habits/{id}/complete    Complete habit

  Rewards (Tier B):
    GET    /api/rewards?status=&group=  List rewards
    POST   /api/rewards                 Create reward
    PUT    /api/rewards/{id}            Update reward
    DELETE /api/rewards/{id}            Delete reward
    POST   /api/rewards/{id}/redeem     Redeem reward

  Ledger:
    GET    /api/energy                  Per-group, global and total balances
    GET    /api/history?group=          Ledger history by day

ERROR HANDLING:
  Errors are returned as JSON with a status derived from the error chain:
  - 400: Invalid input
  - 401: No session
  - 404: Entity not found
  - 409: Insufficient energy, already redeemed
  - 502: Remote store failure, including a blocked group delete
  - 500: Anything else

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Seed scenarios
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/warp/habit-flywheel/app"
	"github.com/warp/habit-flywheel/flywheel"
	"github.com/warp/habit-flywheel/logger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// AccountOpener returns the remote store of one account.
type AccountOpener func(accountID string) flywheel.RemoteStore

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	State *app.State
	Open  AccountOpener

	mu              sync.Mutex
	account         string
	currentScenario string
}

// NewHandler creates a handler over state. open resolves account ids on
// sign-in.
func NewHandler(state *app.State, open AccountOpener) *Handler {
	return &Handler{State: state, Open: open}
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// SignIn attaches an account and loads it.
// POST /api/session
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if !decode(w, r, &req) {
		return
	}
	account := strings.TrimSpace(req.AccountID)
	if account == "" {
		writeError(w, http.StatusBadRequest, "account_id is required", nil)
		return
	}

	h.mu.Lock()
	h.account = account
	h.currentScenario = ""
	h.mu.Unlock()

	logger.Info("signing in", "account", account)
	if err := h.State.SignIn(r.Context(), h.Open(account)); err != nil {
		writeDomainError(w, "Initial load failed", err)
		return
	}
	writeJSON(w, http.StatusOK, h.stateDTO())
}

// SignOut drops the session.
// DELETE /api/session
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.State.SignOut()

	h.mu.Lock()
	logger.Info("signed out", "account", h.account)
	h.account = ""
	h.currentScenario = ""
	h.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

// Refresh reloads the cache unless it is fresh.
// POST /api/refresh?force=true
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid force parameter", err)
			return
		}
		force = b
	}

	if err := h.State.Refresh(r.Context(), force); err != nil {
		writeDomainError(w, "Refresh failed", err)
		return
	}
	writeJSON(w, http.StatusOK, h.stateDTO())
}

// GetState returns the cache status.
// GET /api/state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stateDTO())
}

func (h *Handler) stateDTO() StateDTO {
	dto := toStateDTO(h.State.Snapshot(), h.State.Status(), h.State.Engine().LastError())
	h.mu.Lock()
	dto.AccountID = h.account
	dto.Scenario = h.currentScenario
	h.mu.Unlock()
	return dto
}

// =============================================================================
// GROUP HANDLERS
// =============================================================================

// ListGroups returns all groups with their balances.
// GET /api/groups
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	b := h.State.Balances()
	groups := h.State.Groups()
	dtos := make([]GroupDTO, len(groups))
	for i, g := range groups {
		dtos[i] = toGroupDTO(g, b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateGroup creates a group.
// POST /api/groups
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req GroupRequest
	if !decode(w, r, &req) {
		return
	}
	g, err := h.State.AddGroup(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, "Failed to create group", err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupDTO(g, h.State.Balances()))
}

// UpdateGroup renames a group.
// PUT /api/groups/{id}
func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	var req GroupRequest
	if !decode(w, r, &req) {
		return
	}
	g, err := h.State.UpdateGroup(r.Context(), flywheel.GroupID(chi.URLParam(r, "id")), req.Name)
	if err != nil {
		writeDomainError(w, "Failed to update group", err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(g, h.State.Balances()))
}

// DeleteGroup deletes a group.
// DELETE /api/groups/{id}
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.State.DeleteGroup(r.Context(), flywheel.GroupID(chi.URLParam(r, "id"))); err != nil {
		writeDomainError(w, "Failed to delete group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HABIT HANDLERS
// =============================================================================

// ListHabits returns all habits, or those of one scope when ?group= is set.
// An empty group selects the global pool.
// GET /api/habits
func (h *Handler) ListHabits(w http.ResponseWriter, r *http.Request) {
	var habits []flywheel.Habit
	if q := r.URL.Query(); q.Has("group") {
		habits = h.State.HabitsByGroup(flywheel.GroupID(q.Get("group")))
	} else {
		habits = h.State.Habits()
	}
	writeJSON(w, http.StatusOK, h.habitDTOs(habits))
}

// TodaysHabits returns the habits still due.
// GET /api/habits/today
func (h *Handler) TodaysHabits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.habitDTOs(h.State.TodaysHabits()))
}

func (h *Handler) habitDTOs(habits []flywheel.Habit) []HabitDTO {
	dtos := make([]HabitDTO, len(habits))
	for i, hb := range habits {
		dtos[i] = toHabitDTO(hb, h.State.HabitCompletionCount(hb.ID))
	}
	return dtos
}

// CreateHabit creates a habit.
// POST /api/habits
func (h *Handler) CreateHabit(w http.ResponseWriter, r *http.Request) {
	var req HabitRequest
	if !decode(w, r, &req) {
		return
	}
	freq, err := req.Frequency.ToFrequency()
	if err != nil {
		writeDomainError(w, "Invalid frequency", err)
		return
	}

	hb, err := h.State.AddHabit(r.Context(), app.HabitInput{
		Name:        req.Name,
		GroupID:     flywheel.GroupID(req.GroupID),
		Frequency:   freq,
		EnergyValue: req.EnergyValue,
	})
	if err != nil {
		writeDomainError(w, "Failed to create habit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toHabitDTO(hb, 0))
}

// UpdateHabit updates the fields present in the body.
// PUT /api/habits/{id}
func (h *Handler) UpdateHabit(w http.ResponseWriter, r *http.Request) {
	var req HabitPatchRequest
	if !decode(w, r, &req) {
		return
	}

	u := app.HabitUpdate{Name: req.Name, EnergyValue: req.EnergyValue}
	if req.GroupID != nil {
		g := flywheel.GroupID(*req.GroupID)
		u.GroupID = &g
	}
	if req.Frequency != nil {
		f, err := req.Frequency.ToFrequency()
		if err != nil {
			writeDomainError(w, "Invalid frequency", err)
			return
		}
		u.Frequency = &f
	}

	id := flywheel.HabitID(chi.URLParam(r, "id"))
	hb, err := h.State.UpdateHabit(r.Context(), id, u)
	if err != nil {
		writeDomainError(w, "Failed to update habit", err)
		return
	}
	writeJSON(w, http.StatusOK, toHabitDTO(hb, h.State.HabitCompletionCount(id)))
}

// DeleteHabit deletes a habit. Its completions stay in the history.
// DELETE /api/habits/{id}
func (h *Handler) DeleteHabit(w http.ResponseWriter, r *http.Request) {
	if err := h.State.DeleteHabit(r.Context(), flywheel.HabitID(chi.URLParam(r, "id"))); err != nil {
		writeDomainError(w, "Failed to delete habit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompleteHabit records a completion.
// POST /api/habits/{id}/complete
func (h *Handler) CompleteHabit(w http.ResponseWriter, r *http.Request) {
	id := flywheel.HabitID(chi.URLParam(r, "id"))
	c, err := h.State.CompleteHabit(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to complete habit", err)
		return
	}

	dto := CompletionDTO{HabitID: string(c.HabitID), Timestamp: formatTime(c.Timestamp)}
	if hb, ok := h.State.Habit(id); ok {
		dto.HabitName = hb.Name
		dto.GroupID = string(hb.GroupID)
	}
	writeJSON(w, http.StatusCreated, dto)
}

// =============================================================================
// REWARD HANDLERS
// =============================================================================

// ListRewards returns rewards, optionally filtered by ?status=available|redeemed
// and ?group= (empty selects the global pool).
// GET /api/rewards
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	group := flywheel.GroupID(q.Get("group"))
	byGroup := q.Has("group")

	var list []flywheel.Reward
	switch status := q.Get("status"); status {
	case "", "all":
		if byGroup {
			list = h.State.RewardsByGroup(group)
		} else {
			list = h.State.Rewards()
		}
	case "available":
		if byGroup {
			list = h.State.AvailableRewardsIn(group)
		} else {
			list = h.State.AvailableRewards()
		}
	case "redeemed":
		if byGroup {
			list = h.State.RedeemedRewardsIn(group)
		} else {
			list = h.State.RedeemedRewards()
		}
	default:
		writeError(w, http.StatusBadRequest, "Invalid status (use available, redeemed or all)", nil)
		return
	}

	b := h.State.Balances()
	dtos := make([]RewardDTO, len(list))
	for i, rw := range list {
		dtos[i] = toRewardDTO(rw, b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateReward creates a reward.
// POST /api/rewards
func (h *Handler) CreateReward(w http.ResponseWriter, r *http.Request) {
	var req RewardRequest
	if !decode(w, r, &req) {
		return
	}
	rw, err := h.State.AddReward(r.Context(), app.RewardInput{
		Name:        req.Name,
		GroupID:     flywheel.GroupID(req.GroupID),
		EnergyCost:  req.EnergyCost,
		Description: req.Description,
	})
	if err != nil {
		writeDomainError(w, "Failed to create reward", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRewardDTO(rw, h.State.Balances()))
}

// UpdateReward updates the fields present in the body.
// PUT /api/rewards/{id}
func (h *Handler) UpdateReward(w http.ResponseWriter, r *http.Request) {
	var req RewardPatchRequest
	if !decode(w, r, &req) {
		return
	}

	u := app.RewardUpdate{Name: req.Name, EnergyCost: req.EnergyCost, Description: req.Description}
	if req.GroupID != nil {
		g := flywheel.GroupID(*req.GroupID)
		u.GroupID = &g
	}

	rw, err := h.State.UpdateReward(r.Context(), flywheel.RewardID(chi.URLParam(r, "id")), u)
	if err != nil {
		writeDomainError(w, "Failed to update reward", err)
		return
	}
	writeJSON(w, http.StatusOK, toRewardDTO(rw, h.State.Balances()))
}

// DeleteReward deletes a reward. Its redemptions stay in the history.
// DELETE /api/rewards/{id}
func (h *Handler) DeleteReward(w http.ResponseWriter, r *http.Request) {
	if err := h.State.DeleteReward(r.Context(), flywheel.RewardID(chi.URLParam(r, "id"))); err != nil {
		writeDomainError(w, "Failed to delete reward", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RedeemReward redeems a reward against its scope balance.
// POST /api/rewards/{id}/redeem
func (h *Handler) RedeemReward(w http.ResponseWriter, r *http.Request) {
	red, err := h.State.RedeemReward(r.Context(), flywheel.RewardID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to redeem reward", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRedemptionDTO(red))
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// GetEnergy returns every balance.
// GET /api/energy
func (h *Handler) GetEnergy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toEnergyDTO(h.State.Balances()))
}

// GetHistory returns the ledgers by day. ?group= restricts to one scope; an
// empty value selects the global pool.
// GET /api/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	f := app.HistoryFilter{}
	if q := r.URL.Query(); q.Has("group") {
		f = app.ForGroup(flywheel.GroupID(q.Get("group")))
	}
	writeJSON(w, http.StatusOK, toHistoryResponse(h.State.History(f)))
}

// =============================================================================
// HELPERS
// =============================================================================

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// statusFor maps a facade error to an HTTP status. Conflicts are checked
// before adapter failures so a redemption refused by the store's guard is
// still reported as a conflict.
func statusFor(err error) int {
	switch {
	case errors.Is(err, flywheel.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, flywheel.ErrInsufficientEnergy), errors.Is(err, flywheel.ErrAlreadyRedeemed):
		return http.StatusConflict
	case flywheel.IsAdapterFailure(err):
		return http.StatusBadGateway
	case errors.Is(err, flywheel.ErrInvalidInput):
		return http.StatusBadRequest
	case flywheel.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(message, "status", status, "error", err)
	}
	writeError(w, status, message, err)
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

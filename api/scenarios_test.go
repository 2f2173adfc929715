/*
scenarios_test.go - Tests for seed scenarios

Tests for:
- Embedded scenario files parse and reference only declared keys
- Loading a scenario through the API produces the expected balances
- Loading twice does not collide on ids
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/habit-flywheel/flywheel"
	"github.com/warp/habit-flywheel/flywheel/store"
)

func TestLoadScenarios_ParsesEmbeddedFiles(t *testing.T) {
	all, err := LoadScenarios()
	require.NoError(t, err)

	ids := make([]string, len(all))
	for i, sc := range all {
		ids[i] = sc.ID
		assert.NotEmpty(t, sc.Name, sc.ID)
	}
	assert.Equal(t, []string{"fresh-start", "monthly-goals", "morning-routine"}, ids)
}

func TestScenario_ApplyEveryFile(t *testing.T) {
	all, err := LoadScenarios()
	require.NoError(t, err)

	for _, sc := range all {
		t.Run(sc.ID, func(t *testing.T) {
			m := store.NewMemory(nil)
			n := 0
			newID := func() string { n++; return fmt.Sprintf("%s-%d", sc.ID, n) }

			require.NoError(t, sc.Apply(context.Background(), m, testStart, newID))

			rows := m.Rows()
			assert.Len(t, rows.Groups, len(sc.Groups))
			assert.Len(t, rows.Habits, len(sc.Habits))
			assert.Len(t, rows.Rewards, len(sc.Rewards))
			assert.Len(t, rows.Completions, len(sc.Completions))
			assert.Len(t, rows.Redemptions, len(sc.Redemptions))
			for _, h := range rows.Habits {
				assert.NotEmpty(t, h.Frequency.Description, h.Name)
			}
		})
	}
}

func TestScenario_UnknownKey(t *testing.T) {
	var sc Scenario
	sc.ID = "broken"
	sc.Completions = append(sc.Completions, struct {
		Habit   string `yaml:"habit"`
		DaysAgo int    `yaml:"days_ago"`
	}{Habit: "ghost"})

	err := sc.Apply(context.Background(), store.NewMemory(nil), testStart, func() string { return "x" })
	assert.ErrorContains(t, err, `unknown habit "ghost"`)
}

func TestLoadScenario_MorningRoutine(t *testing.T) {
	// GIVEN: a signed-in empty account
	// WHEN: the morning-routine scenario is loaded
	// THEN: balances match the seeded ledger
	s := newSQLServer(t)
	s.signIn(t, "alice")

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "morning-routine"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decodeBody[StateDTO](t, rec)
	assert.Equal(t, "morning-routine", st.Scenario)
	assert.Equal(t, 2, st.Groups)
	assert.Equal(t, 4, st.Habits)
	assert.Equal(t, 3, st.Rewards)

	byName := map[string]GroupDTO{}
	for _, g := range decodeBody[[]GroupDTO](t, s.do(t, http.MethodGet, "/api/groups", nil)) {
		byName[g.Name] = g
	}
	// Fitness: 3 runs x5 + 3 push-ups x2. Mind: 3 journals x3 - coffee 6.
	assert.Equal(t, 21, byName["Fitness"].Energy)
	assert.Equal(t, 3, byName["Mind"].Energy)

	e := s.energy(t)
	assert.Equal(t, 4, e.Global)
	assert.Equal(t, 28, e.Total)

	redeemed := decodeBody[[]RewardDTO](t, s.do(t, http.MethodGet, "/api/rewards?status=redeemed", nil))
	require.Len(t, redeemed, 1)
	assert.Equal(t, "Fancy coffee", redeemed[0].Name)

	cur := decodeBody[ScenarioDTO](t, s.do(t, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "Morning Routine", cur.Name)
}

func TestLoadScenario_TwiceIntoOneAccount(t *testing.T) {
	s := newSQLServer(t)
	s.signIn(t, "alice")

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "fresh-start"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	assert.Len(t, s.state.Groups(), 2)
	assert.Len(t, s.state.Habits(), 4)
}

func TestLoadScenario_Errors(t *testing.T) {
	s := newSQLServer(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "fresh-start"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	s.signIn(t, "alice")
	rec = s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null\n", rec.Body.String())
}

func TestListScenarios(t *testing.T) {
	s := newMemoryServer(t, store.NewMemory(nil))

	rec := s.do(t, http.MethodGet, "/api/scenarios", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]ScenarioDTO](t, rec)
	require.Len(t, list, 3)
	assert.Equal(t, "fresh-start", list[0].ID)
}

func TestScenario_GlobalOnlyScenario(t *testing.T) {
	sc, ok := FindScenario("monthly-goals")
	require.True(t, ok)

	m := store.NewMemory(nil)
	n := 0
	require.NoError(t, sc.Apply(context.Background(), m, testStart, func() string { n++; return fmt.Sprint(n) }))

	rows := m.Rows()
	assert.Empty(t, rows.Groups)
	b := flywheel.ComputeBalances(rows.EnergyEvents, rows.GroupIDs())
	assert.Equal(t, 4, b.Global)
	assert.Equal(t, flywheel.FrequencyMonthly, rows.Habits[0].Frequency.Type)
}

/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging through the process logger
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for a frontend

ROUTE GROUPS:
  /api/session, /api/refresh, /api/state   Session and cache
  /api/groups/*                            Groups
  /api/habits/*                            Habits and completions
  /api/rewards/*                           Rewards and redemptions
  /api/energy, /api/history                Ledger queries
  /api/scenarios/*                         Seed scenarios

SECURITY NOTE:
  Sign-in trusts the account id in the body. Put the server behind an
  authenticating proxy before exposing it.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/habit-flywheel/logger"
)

// DefaultOrigins are allowed when no CORS origins are configured.
var DefaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	if len(origins) == 0 {
		origins = DefaultOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  logger.Standard(),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Session routes
		r.Post("/session", h.SignIn)
		r.Delete("/session", h.SignOut)
		r.Post("/refresh", h.Refresh)
		r.Get("/state", h.GetState)

		// Group routes
		r.Route("/groups", func(r chi.Router) {
			r.Get("/", h.ListGroups)
			r.Post("/", h.CreateGroup)
			r.Put("/{id}", h.UpdateGroup)
			r.Delete("/{id}", h.DeleteGroup)
		})

		// Habit routes
		r.Route("/habits", func(r chi.Router) {
			r.Get("/", h.ListHabits)
			r.Post("/", h.CreateHabit)
			r.Get("/today", h.TodaysHabits)
			r.Put("/{id}", h.UpdateHabit)
			r.Delete("/{id}", h.DeleteHabit)
			r.Post("/{id}/complete", h.CompleteHabit)
		})

		// Reward routes
		r.Route("/rewards", func(r chi.Router) {
			r.Get("/", h.ListRewards)
			r.Post("/", h.CreateReward)
			r.Put("/{id}", h.UpdateReward)
			r.Delete("/{id}", h.DeleteReward)
			r.Post("/{id}/redeem", h.RedeemReward)
		})

		// Ledger routes
		r.Get("/energy", h.GetEnergy)
		r.Get("/history", h.GetHistory)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Habit Flywheel</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Habit Flywheel API</h1>
<ul>
<li><a href="/api/state">/api/state</a> - Cache status</li>
<li><a href="/api/habits/today">/api/habits/today</a> - Habits due today</li>
<li><a href="/api/energy">/api/energy</a> - Balances</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Seed scenarios</li>
</ul>
</body>
</html>`))
	})

	return r
}

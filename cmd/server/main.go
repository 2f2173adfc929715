/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Habit Flywheel server, and manages the
  database DSN stored in the OS keyring.

COMMANDS:
  serve (default)        Run the HTTP server
  keyring set-dsn DSN    Store the database DSN in the OS keyring
  keyring show-dsn       Print the stored DSN with the password masked
  keyring clear-dsn      Remove the stored DSN

STARTUP SEQUENCE:
  1. Parse flags and FLYWHEEL_* environment variables
  2. Initialize the logger
  3. Open the SQL store (sqlite3 or postgres)
  4. Create the state facade, API handler and router
  5. Start the day rollover scheduler
  6. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler and sign out
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server serve --dsn=./data/flywheel.db

  # Run against PostgreSQL with the DSN from the keyring
  ./server keyring set-dsn "postgres://app:secret@db:5432/flywheel"
  ./server serve --driver=postgres --dsn-from-keyring

SEE ALSO:
  - config/config.go: All settings
  - api/server.go: Router configuration
  - store/sqldb/sqldb.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/warp/habit-flywheel/api"
	"github.com/warp/habit-flywheel/app"
	"github.com/warp/habit-flywheel/config"
	"github.com/warp/habit-flywheel/flywheel"
	"github.com/warp/habit-flywheel/logger"
	"github.com/warp/habit-flywheel/secrets"
	"github.com/warp/habit-flywheel/store/sqldb"
)

var CLI struct {
	Version kong.VersionFlag

	Serve   ServeCmd `cmd:"" help:"Run the HTTP server." default:"1"`
	Keyring struct {
		SetDSN   KeyringSetCmd   `cmd:"" name:"set-dsn" help:"Store the database DSN in the OS keyring."`
		ShowDSN  KeyringShowCmd  `cmd:"" name:"show-dsn" help:"Show the stored DSN with the password masked."`
		ClearDSN KeyringClearCmd `cmd:"" name:"clear-dsn" help:"Remove the stored DSN."`
	} `cmd:"" help:"Manage the database DSN in the OS keyring."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("flywheel"),
		kong.Description("Habit tracker with energy balances and rewards"),
		kong.UsageOnError(),
		kong.Vars{"version": "v0.1.0"},
	)
	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// SERVE
// =============================================================================

type ServeCmd struct {
	config.Config `embed:""`
}

func (cmd *ServeCmd) Run() error {
	cfg := &cmd.Config
	if err := logger.Init(cfg.Logger()); err != nil {
		return err
	}

	dsn, err := cfg.ResolveDSN()
	if err != nil {
		return err
	}
	store, err := sqldb.Open(cfg.Driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	state := app.New(cfg.AppOptions()...)
	handler := api.NewHandler(state, func(account string) flywheel.RemoteStore {
		return store.Account(account)
	})
	router := api.NewRouter(handler, cfg.CORSOrigins)

	scheduler := api.NewRolloverScheduler(state)
	scheduler.CheckInterval = cfg.RolloverInterval
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "driver", cfg.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	state.SignOut()

	logger.Info("server stopped")
	return nil
}

// =============================================================================
// KEYRING
// =============================================================================

type KeyringSetCmd struct {
	DSN string `arg:"" help:"Database DSN to store."`
}

func (cmd *KeyringSetCmd) Run() error {
	if err := secrets.SetDSN(cmd.DSN); err != nil {
		return err
	}
	fmt.Println("DSN stored in OS keyring. Start the server with --dsn-from-keyring to use it.")
	return nil
}

type KeyringShowCmd struct{}

func (cmd *KeyringShowCmd) Run() error {
	dsn, err := secrets.GetDSN()
	if err != nil {
		if errors.Is(err, secrets.ErrNotFound) {
			return errors.New("no DSN stored. Use 'flywheel keyring set-dsn' to store one")
		}
		return err
	}
	fmt.Println(secrets.Mask(dsn))
	return nil
}

type KeyringClearCmd struct{}

func (cmd *KeyringClearCmd) Run() error {
	if err := secrets.DeleteDSN(); err != nil {
		if errors.Is(err, secrets.ErrNotFound) {
			return errors.New("no DSN stored")
		}
		return err
	}
	fmt.Println("DSN removed from OS keyring.")
	return nil
}

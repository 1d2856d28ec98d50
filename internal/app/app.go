// Package app wires the client core from configuration. Both binaries build
// on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rizztempo/rizztempo/internal/account"
	"github.com/rizztempo/rizztempo/internal/auth"
	"github.com/rizztempo/rizztempo/internal/backend"
	"github.com/rizztempo/rizztempo/internal/config"
	"github.com/rizztempo/rizztempo/internal/fingerprint"
	"github.com/rizztempo/rizztempo/internal/hooks"
	"github.com/rizztempo/rizztempo/internal/kvstore"
	"github.com/rizztempo/rizztempo/internal/ledger"
	ledgerpg "github.com/rizztempo/rizztempo/internal/ledger/postgres"
	ledgersql "github.com/rizztempo/rizztempo/internal/ledger/sqlite"
	"github.com/rizztempo/rizztempo/internal/logging"
	"github.com/rizztempo/rizztempo/internal/model"
	"github.com/rizztempo/rizztempo/internal/practice"
	"github.com/rizztempo/rizztempo/internal/remote"
	"github.com/rizztempo/rizztempo/internal/state"
)

// ApplicationID tags the device fingerprint.
const ApplicationID = "ai.rizztempo.core"

// Core holds every long-lived component.
type Core struct {
	Config      config.Config
	LogOutput   io.Writer
	Logger      *log.Logger
	Store       *kvstore.SQLite
	Client      *remote.Client
	Auth        *auth.Manager
	Events      *hooks.Dispatcher
	Fingerprint *fingerprint.Generator
	Procedures  *backend.Procedures
	State       *state.State
	Accounts    *account.Service
	Journal     ledger.Store
	Plans       []model.Plan

	unsubscribe func()
}

// Open builds the core. component names the log prefix of the binary.
func Open(cfg config.Config, out io.Writer, component string) (*Core, error) {
	if out == nil {
		out = os.Stdout
	}
	logger := func(name string) *log.Logger {
		return logging.New(out, name, cfg.Environment, cfg.LogLevel)
	}
	c := &Core{Config: cfg, LogOutput: out, Logger: logger(component), Events: &hooks.Dispatcher{}}

	plans, err := model.LoadPlans(cfg.PlansFile)
	if err != nil {
		return nil, err
	}
	c.Plans = plans

	if handler := cfg.Hooks.BuildScriptHandler(); handler != nil {
		c.Events.Register(handler)
		c.Logger.Printf("hooks dispatcher enabled script=%s", cfg.Hooks.ScriptPath)
	}

	if err := ensureDir(cfg.StatePath); err != nil {
		return nil, err
	}
	store, err := kvstore.OpenSQLite(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	c.Store = store

	client, err := remote.NewClient(cfg.BackendURL, cfg.AnonKey, &http.Client{Timeout: cfg.RequestTimeout})
	if err != nil {
		c.Close()
		return nil, err
	}
	client.SetLogger(logger("remote"))
	c.Client = client

	c.Auth = auth.NewManager(client, store, c.Events)
	c.Auth.SetLogger(logger("auth"))
	client.SetTokenSource(c.Auth)

	c.Fingerprint = fingerprint.NewGenerator(store, fingerprint.HostCollector{ApplicationID: ApplicationID})
	c.Fingerprint.SetLogger(logger("fingerprint"))

	c.Procedures = backend.New(client)
	c.State = state.New(state.Deps{
		Client:     client,
		Procedures: c.Procedures,
		Users:      c.Auth,
		Events:     c.Events,
		Logger:     logger("state"),
	})
	c.unsubscribe = c.Auth.Subscribe(c.State.HandleAuthChange)

	c.Accounts = account.NewService(c.Auth, client, c.Procedures, c.Fingerprint, c.State)
	c.Accounts.SetLogger(logger("account"))
	return c, nil
}

// Restore reloads the persisted auth session and, when signed in, the cached data.
func (c *Core) Restore(ctx context.Context) error {
	session, err := c.Auth.Restore(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}
	if err := c.State.RefetchAll(ctx); err != nil {
		c.Logger.Printf("initial refetch: %v", err)
	}
	return nil
}

// OpenJournal opens the PostgreSQL journal when a DSN is configured and the
// SQLite journal otherwise.
func (c *Core) OpenJournal() (ledger.Store, error) {
	if dsn := strings.TrimSpace(c.Config.JournalDSN); dsn != "" {
		store, err := ledgerpg.New(dsn, ledgerpg.Options{})
		if err != nil {
			return nil, fmt.Errorf("open postgres journal: %w", err)
		}
		c.Journal = store
		return store, nil
	}
	if err := ensureDir(c.Config.JournalPath); err != nil {
		return nil, err
	}
	store, err := ledgersql.New(c.Config.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite journal: %w", err)
	}
	c.Journal = store
	return store, nil
}

// Policy is the practice timer policy from configuration.
func (c *Core) Policy() practice.Config {
	return practice.Config{
		Rate:         c.Config.TokensPerSecond,
		MinBalance:   c.Config.MinStartBalance,
		TickInterval: c.Config.TickInterval,
	}
}

// Close releases the stores. It is safe to call on a partially opened core.
func (c *Core) Close() error {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	var errs []error
	if c.Journal != nil {
		errs = append(errs, c.Journal.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	return errors.Join(errs...)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rizztempo/rizztempo/internal/app"
	"github.com/rizztempo/rizztempo/internal/bootstrap"
	"github.com/rizztempo/rizztempo/internal/config"
	"github.com/rizztempo/rizztempo/internal/logging"
	"github.com/rizztempo/rizztempo/internal/version"
)

type command func(ctx context.Context, core *app.Core, args []string) error

var commands = map[string]command{
	"fingerprint":         runFingerprint,
	"signup":              runSignUp,
	"signin":              runSignIn,
	"signout":             runSignOut,
	"balance":             runBalance,
	"scenarios":           runScenarios,
	"plans":               runPlans,
	"challenge":           runChallenge,
	"practice":            runPractice,
	"subscribe":           runSubscribe,
	"cancel-subscription": runCancelSubscription,
	"purchase":            runPurchase,
	"onboard":             runOnboard,
	"stats":               runStats,
	"journal":             runJournal,
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}
	name := os.Args[1]
	switch name {
	case "init":
		if err := runInit(os.Args[2:]); err != nil {
			log.Fatalf("rizztempo init failed: %v", err)
		}
		fmt.Println("rizztempo config initialised")
		return
	case "version", "--version":
		fmt.Println(version.FullInfo())
		return
	case "help", "--help", "-h":
		printUsage()
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		printUsage()
		os.Exit(2)
	}
	if err := run(name, cmd, os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "rizztempo %s: %v\n", name, err)
		os.Exit(1)
	}
}

func run(name string, cmd command, args []string) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	out := io.Writer(os.Stderr)
	if target := strings.TrimSpace(cfg.LogFileCLI); target != "" {
		rot, err := logging.NewRotatingWriter(target, 50*1024*1024)
		if err != nil {
			return fmt.Errorf("init rotating log: %w", err)
		}
		defer rot.Close()
		out = rot
	}
	log.SetOutput(out)
	log.SetFlags(logging.Flags)
	log.SetPrefix(logging.Prefix("rizztempo", cfg.Environment, cfg.LogLevel))

	core, err := app.Open(cfg, out, "cli")
	if err != nil {
		return err
	}
	defer core.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if _, err := core.Auth.Restore(ctx); err != nil {
		core.Logger.Printf("restore session: %v", err)
	}
	core.Logger.Printf("command=%s user=%s", name, core.Auth.UserID())
	return cmd(ctx, core, args)
}

func printUsage() {
	fmt.Print(`rizztempo - conversation practice client

Usage:
  rizztempo init [flags]                      Generate config/setting.ini and environment overrides
  rizztempo fingerprint [--clear]             Show (or reset) the device fingerprint
  rizztempo signup --email --password --phone Create an account
  rizztempo signin --email --password         Sign in
  rizztempo signout                           Sign out and clear cached data
  rizztempo balance                           Show the token balance
  rizztempo scenarios                         List practice scenarios
  rizztempo plans                             List subscription plans
  rizztempo challenge                         Show today's daily challenge
  rizztempo practice --scenario <title>       Run a timed practice session (p/r/e on stdin)
  rizztempo subscribe --plan <id>             Activate a subscription plan
  rizztempo cancel-subscription               Cancel the active subscription
  rizztempo purchase --amount --payment       Record a token purchase
  rizztempo onboard --level --goals           Complete onboarding
  rizztempo stats [--days N]                  Show the performance dashboard
  rizztempo journal [--limit N]               Show journaled practice outcomes
  rizztempo version                           Print build information

Flags for init:
  --root string            output directory (default '.')
  --env string             environment name (default 'dev')
  --backend-url string     hosted backend URL (required)
  --anon-key string        backend public key (required)
  --voice-agent string     voice agent id
  --journal-path string    session journal SQLite path (default ~/.rizztempo/journal.db)
  --http-address string    bind address for rizztempod (default '127.0.0.1:8790')
  --force                  overwrite existing files
`)
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	root := fs.String("root", ".", "config root")
	env := fs.String("env", "dev", "environment name")
	backendURL := fs.String("backend-url", os.Getenv("EXPO_PUBLIC_SUPABASE_URL"), "hosted backend URL")
	anonKey := fs.String("anon-key", os.Getenv("EXPO_PUBLIC_SUPABASE_ANON_KEY"), "backend public key")
	agent := fs.String("voice-agent", "", "voice agent id")
	journalPath := fs.String("journal-path", "", "journal sqlite path")
	httpAddr := fs.String("http-address", "", "daemon HTTP bind address")
	force := fs.Bool("force", false, "overwrite existing files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	opts := bootstrap.InitOptions{
		Root:         *root,
		Environment:  *env,
		BackendURL:   *backendURL,
		AnonKey:      *anonKey,
		VoiceAgentID: *agent,
		JournalPath:  *journalPath,
		HTTPAddress:  *httpAddr,
		Force:        *force,
	}
	if err := bootstrap.Validate(opts); err != nil {
		return err
	}
	return bootstrap.Init(opts)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func stringFromEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rizztempo/rizztempo/internal/hooks"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/rizztempo.ini"
	dotenvFile       = ".env"
)

// DefaultTokensPerSecond bills one token per 36 seconds of practice.
const DefaultTokensPerSecond = 1.0 / 36.0

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// Config describes runtime options shared by the CLI and the daemon.
type Config struct {
	Environment string

	// Hosted backend (REST + RPC + auth) and its public key.
	BackendURL     string
	AnonKey        string
	RequestTimeout time.Duration

	LogFileCLI    string
	LogFileDaemon string
	LogLevel      string

	// StatePath is the local key-value database (fingerprint, auth session).
	StatePath string
	// JournalPath is the SQLite session journal; JournalDSN switches to PostgreSQL.
	JournalPath string
	JournalDSN  string

	VoiceURL     string
	VoiceAgentID string
	VoiceAPIKey  string
	PartnerName  string

	// Timer policy.
	TickInterval    time.Duration
	TokensPerSecond float64
	MinStartBalance float64

	HTTPAddress string
	// AuthRatePerMinute and AuthBurst throttle daemon sign-in attempts per
	// client; a zero rate disables the limit.
	AuthRatePerMinute float64
	AuthBurst         int
	PlansFile         string
	// ChallengeRefresh is a cron spec evaluated in UTC.
	ChallengeRefresh string

	Hooks hooks.Config
}

// Load reads .env, the settings file, the environment-specific file and
// RIZZTEMPO_* overrides, in increasing order of precedence.
func Load(root string) (Config, error) {
	if root == "" {
		root = "."
	}
	if err := godotenv.Load(filepath.Join(root, dotenvFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", dotenvFile, err)
	}
	s, err := loadSettings(root)
	if err != nil {
		return Config{}, err
	}
	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return Config{}, err
		}
	}
	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}

	cfg := Config{
		Environment:      s.Environment,
		BackendURL:       firstNonEmpty(os.Getenv("RIZZTEMPO_BACKEND_URL"), merged["backend_url"], os.Getenv("EXPO_PUBLIC_SUPABASE_URL")),
		AnonKey:          firstNonEmpty(os.Getenv("RIZZTEMPO_ANON_KEY"), merged["anon_key"], os.Getenv("EXPO_PUBLIC_SUPABASE_ANON_KEY")),
		LogFileCLI:       firstNonEmpty(os.Getenv("RIZZTEMPO_LOG_FILE_CLI"), os.Getenv("RIZZTEMPO_LOG_FILE"), merged["log_file_cli"], merged["log_file"]),
		LogFileDaemon:    firstNonEmpty(os.Getenv("RIZZTEMPO_LOG_FILE_DAEMON"), os.Getenv("RIZZTEMPO_LOG_FILE"), merged["log_file_daemon"], merged["log_file"]),
		LogLevel:         strings.ToLower(firstNonEmpty(os.Getenv("RIZZTEMPO_LOG_LEVEL"), merged["log_level"], "info")),
		StatePath:        firstNonEmpty(os.Getenv("RIZZTEMPO_STATE_PATH"), merged["state_path"], DefaultStatePath()),
		JournalPath:      firstNonEmpty(os.Getenv("RIZZTEMPO_JOURNAL_PATH"), merged["journal_path"], DefaultJournalPath()),
		JournalDSN:       firstNonEmpty(os.Getenv("RIZZTEMPO_JOURNAL_DSN"), merged["journal_dsn"]),
		VoiceURL:         firstNonEmpty(os.Getenv("RIZZTEMPO_VOICE_URL"), merged["voice_url"], "wss://api.elevenlabs.io/v1/convai/conversation"),
		VoiceAgentID:     firstNonEmpty(os.Getenv("RIZZTEMPO_VOICE_AGENT_ID"), merged["voice_agent_id"]),
		VoiceAPIKey:      firstNonEmpty(os.Getenv("RIZZTEMPO_VOICE_API_KEY"), merged["voice_api_key"]),
		PartnerName:      firstNonEmpty(merged["partner_name"], "Sarah"),
		HTTPAddress:      firstNonEmpty(os.Getenv("RIZZTEMPO_HTTP_ADDRESS"), merged["http_address"], "127.0.0.1:8790"),
		PlansFile:        firstNonEmpty(os.Getenv("RIZZTEMPO_PLANS_FILE"), merged["plans_file"]),
		ChallengeRefresh: firstNonEmpty(os.Getenv("RIZZTEMPO_CHALLENGE_REFRESH"), merged["challenge_refresh"], "0 0 * * *"),
		TokensPerSecond:  DefaultTokensPerSecond,
		MinStartBalance:  1,
	}
	if strings.TrimSpace(cfg.BackendURL) == "" || strings.TrimSpace(cfg.AnonKey) == "" {
		return Config{}, errors.New("missing backend_url or anon_key (set RIZZTEMPO_BACKEND_URL/RIZZTEMPO_ANON_KEY or the config files)")
	}

	if cfg.RequestTimeout, err = parseDuration("request_timeout", firstNonEmpty(os.Getenv("RIZZTEMPO_REQUEST_TIMEOUT"), merged["request_timeout"]), 15*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.TickInterval, err = parseDuration("tick_interval", firstNonEmpty(os.Getenv("RIZZTEMPO_TICK_INTERVAL"), merged["tick_interval"]), 100*time.Millisecond); err != nil {
		return Config{}, err
	}
	if v := firstNonEmpty(os.Getenv("RIZZTEMPO_TOKENS_PER_SECOND"), merged["tokens_per_second"]); v != "" {
		rate, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || rate <= 0 {
			return Config{}, fmt.Errorf("invalid tokens_per_second %q", v)
		}
		cfg.TokensPerSecond = rate
	}
	if v := firstNonEmpty(os.Getenv("RIZZTEMPO_MIN_START_BALANCE"), merged["min_start_balance"]); v != "" {
		minBalance, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || minBalance < 0 {
			return Config{}, fmt.Errorf("invalid min_start_balance %q", v)
		}
		cfg.MinStartBalance = minBalance
	}

	cfg.AuthRatePerMinute = 10
	if v := firstNonEmpty(os.Getenv("RIZZTEMPO_AUTH_RATE_PER_MINUTE"), merged["auth_rate_per_minute"]); v != "" {
		rate, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || rate < 0 {
			return Config{}, fmt.Errorf("invalid auth_rate_per_minute %q", v)
		}
		cfg.AuthRatePerMinute = rate
	}
	cfg.AuthBurst = 5
	if v := firstNonEmpty(os.Getenv("RIZZTEMPO_AUTH_BURST"), merged["auth_burst"]); v != "" {
		burst, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || burst < 0 {
			return Config{}, fmt.Errorf("invalid auth_burst %q", v)
		}
		cfg.AuthBurst = burst
	}

	hookArgs := firstNonEmpty(os.Getenv("RIZZTEMPO_HOOK_SCRIPT_ARGS"), merged["hooks_script_args"])
	hookEnv := firstNonEmpty(os.Getenv("RIZZTEMPO_HOOK_SCRIPT_ENV"), merged["hooks_script_env"])
	cfg.Hooks = hooks.Config{
		Enabled:    parseBool(firstNonEmpty(os.Getenv("RIZZTEMPO_HOOKS_ENABLED"), merged["hooks_enabled"])),
		ScriptPath: firstNonEmpty(os.Getenv("RIZZTEMPO_HOOK_SCRIPT"), merged["hooks_script_path"]),
		ScriptArgs: parseCSV(hookArgs),
		Env:        parseMap(hookEnv),
	}
	if cfg.Hooks.Timeout, err = parseDuration("hooks_timeout", firstNonEmpty(os.Getenv("RIZZTEMPO_HOOK_TIMEOUT"), merged["hooks_timeout"]), 0); err != nil {
		return Config{}, err
	}
	if err := cfg.Hooks.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: firstNonEmpty(os.Getenv("RIZZTEMPO_ENV"), defaultEnv), Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := firstNonEmpty(os.Getenv("RIZZTEMPO_ENV"), values["environment"], defaultEnv)
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = strings.TrimSpace(parts[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseDuration(name, v string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return d, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseCSV(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseMap(input string) map[string]string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	result := make(map[string]string)
	for _, entry := range strings.Split(input, ",") {
		kv := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(kv) != 2 {
			continue
		}
		if key := strings.TrimSpace(kv[0]); key != "" {
			result[key] = strings.TrimSpace(kv[1])
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func homeFile(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".rizztempo", name)
}

// DefaultStatePath returns the local key-value database under the user's home directory.
func DefaultStatePath() string { return homeFile("state.db") }

// DefaultJournalPath returns the session journal under the user's home directory.
func DefaultJournalPath() string { return homeFile("journal.db") }

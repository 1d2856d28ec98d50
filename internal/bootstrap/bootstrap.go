package bootstrap

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rizztempo/rizztempo/internal/config"
)

// InitOptions configures the scaffolding of config files.
type InitOptions struct {
	Root         string
	Environment  string
	BackendURL   string
	AnonKey      string
	VoiceAgentID string
	JournalPath  string
	HTTPAddress  string
	Force        bool
}

// Init writes config/setting.ini and config/<env>/rizztempo.ini.
func Init(opts InitOptions) error {
	applyDefaults(&opts)
	if err := Validate(opts); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(opts.Root, "config", opts.Environment), 0o755); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(opts.Root, "config", "setting.ini"), settingTemplate(opts), opts.Force); err != nil {
		return err
	}
	return writeFile(filepath.Join(opts.Root, "config", opts.Environment, "rizztempo.ini"), envTemplate(opts), opts.Force)
}

// Validate checks the options without touching the filesystem.
func Validate(opts InitOptions) error {
	applyDefaults(&opts)
	if strings.TrimSpace(opts.BackendURL) == "" {
		return errors.New("backend url is required")
	}
	u, err := url.Parse(opts.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend url %q is not absolute", opts.BackendURL)
	}
	if strings.TrimSpace(opts.AnonKey) == "" {
		return errors.New("anon key is required")
	}
	return nil
}

func applyDefaults(opts *InitOptions) {
	if strings.TrimSpace(opts.Root) == "" {
		opts.Root = "."
	}
	if strings.TrimSpace(opts.Environment) == "" {
		opts.Environment = "dev"
	}
	if strings.TrimSpace(opts.JournalPath) == "" {
		opts.JournalPath = config.DefaultJournalPath()
	}
	if strings.TrimSpace(opts.HTTPAddress) == "" {
		opts.HTTPAddress = "127.0.0.1:8790"
	}
}

func writeFile(path, contents string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(contents), 0o600)
}

func settingTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# rizztempo settings
environment=%s
log_level=info
`, opts.Environment)
}

func envTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# Environment specific overrides for %s
backend_url=%s
anon_key=%s
# Dash '-' disables file output.
log_file_cli=logs/rizztempo-cli.log
log_file_daemon=logs/rizztempod.log
journal_path=%s
http_address=%s
voice_agent_id=%s
tick_interval=100ms
`, opts.Environment, opts.BackendURL, opts.AnonKey, opts.JournalPath, opts.HTTPAddress, opts.VoiceAgentID)
}

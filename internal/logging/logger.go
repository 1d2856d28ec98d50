package logging

import (
	"fmt"
	"io"
	"log"
	"strings"
)

// Flags used by every logger in the module.
const Flags = log.LstdFlags | log.Lmicroseconds

// New builds a component logger with the "[rizztempo/<component>][<env>][<LEVEL>] " prefix.
func New(out io.Writer, component, env, level string) *log.Logger {
	if out == nil {
		out = io.Discard
	}
	return log.New(out, Prefix(component, env, level), Flags)
}

// Prefix renders the bracketed prefix used by New.
func Prefix(component, env, level string) string {
	if strings.TrimSpace(env) == "" {
		env = "dev"
	}
	lvl := strings.ToUpper(strings.TrimSpace(level))
	if lvl == "" {
		lvl = "INFO"
	}
	return fmt.Sprintf("[rizztempo/%s][%s][%s] ", component, env, lvl)
}

// DebugEnabled reports whether the configured level lets debug lines through.
func DebugEnabled(level string) bool {
	return strings.EqualFold(strings.TrimSpace(level), "debug")
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// Package logging provides the structured logger used across the engine,
// bus, and HTTP layers: local log.Printf output plus optional Sentry
// breadcrumbs/exceptions, grounded on the teacher pack's
// Conceptual-Machines-magda-api/internal/logger package.
package logging

import (
	"fmt"
	"log"

	"github.com/getsentry/sentry-go"
)

// Fields is a structured set of key/value pairs attached to a log line.
type Fields map[string]interface{}

// Init configures the process-wide Sentry client. dsn == "" disables
// Sentry entirely; Info/Warn/Error/Debug still log locally via log.Printf
// in that case (spec.md §7: backend-open failures, ring-buffer drops, and
// hot-unplug events must never be silently dropped, Sentry or not).
func Init(dsn, environment string) error {
	if dsn == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
}

// Logger tags every line it emits with a component name (e.g. "bus",
// "engine", "httpapi"), the way the teacher's logger tags lines with a
// request ID via WithContext.
type Logger struct {
	component string
}

// NewLogger returns a Logger for the given component.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) tag(fields Fields) Fields {
	if fields == nil {
		fields = Fields{}
	}
	fields["component"] = l.component
	return fields
}

// Info logs an informational message and, if Sentry is configured, records
// it as a breadcrumb.
func (l *Logger) Info(msg string, fields Fields) {
	fields = l.tag(fields)
	log.Printf("[INFO] %s %s", msg, formatFields(fields))
	if hub := sentry.CurrentHub(); hub != nil && hub.Client() != nil {
		sentry.AddBreadcrumb(&sentry.Breadcrumb{
			Type:     "info",
			Category: l.component,
			Message:  msg,
			Data:     fields,
			Level:    sentry.LevelInfo,
		})
	}
}

// Warn logs a warning and records a Sentry breadcrumb.
func (l *Logger) Warn(msg string, fields Fields) {
	fields = l.tag(fields)
	log.Printf("[WARN] %s %s", msg, formatFields(fields))
	if hub := sentry.CurrentHub(); hub != nil && hub.Client() != nil {
		sentry.AddBreadcrumb(&sentry.Breadcrumb{
			Type:     "warning",
			Category: l.component,
			Message:  msg,
			Data:     fields,
			Level:    sentry.LevelWarning,
		})
	}
}

// Error logs an error and, if Sentry is configured, captures it as an
// exception with fields attached as scope context (spec.md §7: backend
// failures and hot-unplug events are surfaced, not swallowed).
func (l *Logger) Error(msg string, fields Fields) {
	fields = l.tag(fields)
	log.Printf("[ERROR] %s %s", msg, formatFields(fields))
	hub := sentry.CurrentHub()
	if hub == nil || hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range fields {
			scope.SetContext(k, map[string]interface{}{"value": v})
		}
		if err, ok := fields["err"].(error); ok {
			hub.CaptureException(err)
			return
		}
		hub.CaptureMessage(msg)
	})
}

// Debug logs a debug-level message; never sent to Sentry.
func (l *Logger) Debug(msg string, fields Fields) {
	log.Printf("[DEBUG] %s %s", msg, formatFields(l.tag(fields)))
}

func formatFields(fields Fields) string {
	if len(fields) == 0 {
		return ""
	}
	out := "{"
	first := true
	for k, v := range fields {
		if !first {
			out += ", "
		}
		out += fmt.Sprintf("%s=%v", k, v)
		first = false
	}
	return out + "}"
}

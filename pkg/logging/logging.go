// pkg/logging/logging.go - structured key/value logging for appdeploy.
//
// Log output goes to the console and, when a state directory is known, to a
// JSON-lines session file so failed transactions can be inspected after the
// fact alongside the journal.

package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of the log message.
type LogLevel int

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// String returns the string representation of the LogLevel.
func (ll LogLevel) String() string {
	switch ll {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a configuration string to a LogLevel. Unknown values
// default to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LevelError
	case "WARN", "WARNING":
		return LevelWarn
	case "DEBUG":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// Entry is the JSON-lines record written to the session log file.
type Entry struct {
	Time       string                 `json:"time"`
	Level      string                 `json:"level"`
	Message    string                 `json:"message"`
	SessionID  string                 `json:"session_id"`
	PID        int                    `json:"pid"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Logger writes leveled key/value messages to the console and an optional
// JSON-lines file.
type Logger struct {
	mu        sync.Mutex
	level     LogLevel
	sessionID string
	jsonFile  *os.File
}

var (
	instance *Logger
	once     sync.Once
)

// Init initializes the singleton logger. Calls after the first are no-ops.
func Init(level string, sessionID string) error {
	once.Do(func() {
		instance = &Logger{
			level:     ParseLevel(level),
			sessionID: sessionID,
		}
	})
	return nil
}

// AttachFile starts mirroring log entries to a JSON-lines file under dir.
// Called once the state directory is known (after scope negotiation).
func AttachFile(dir string) error {
	l := get()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating log directory %s: %w", dir, err)
	}
	name := fmt.Sprintf("session-%s.jsonl", time.Now().Format("2006-01-02-150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening session log: %w", err)
	}
	l.mu.Lock()
	l.jsonFile = f
	l.mu.Unlock()
	return nil
}

// CloseLogger flushes and closes the session log file, if any.
func CloseLogger() {
	l := get()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.jsonFile != nil {
		l.jsonFile.Close()
		l.jsonFile = nil
	}
}

// SetLevel overrides the logger verbosity at runtime.
func SetLevel(level LogLevel) {
	l := get()
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func get() *Logger {
	once.Do(func() {
		instance = &Logger{level: LevelInfo}
	})
	return instance
}

// Debug logs at DEBUG level with optional key/value pairs.
func Debug(message string, keyvals ...interface{}) { get().log(LevelDebug, message, keyvals...) }

// Info logs at INFO level with optional key/value pairs.
func Info(message string, keyvals ...interface{}) { get().log(LevelInfo, message, keyvals...) }

// Warn logs at WARN level with optional key/value pairs.
func Warn(message string, keyvals ...interface{}) { get().log(LevelWarn, message, keyvals...) }

// Error logs at ERROR level with optional key/value pairs.
func Error(message string, keyvals ...interface{}) { get().log(LevelError, message, keyvals...) }

func (l *Logger) log(level LogLevel, message string, keyvals ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level > l.level {
		return
	}

	props := pairProperties(keyvals)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", time.Now().Format("15:04:05"), level.String(), message)
	for k, v := range props {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	out := os.Stdout
	if level == LevelError || level == LevelWarn {
		out = os.Stderr
	}
	fmt.Fprintln(out, b.String())

	if l.jsonFile != nil {
		entry := Entry{
			Time:       time.Now().Format(time.RFC3339),
			Level:      level.String(),
			Message:    message,
			SessionID:  l.sessionID,
			PID:        os.Getpid(),
			Properties: props,
		}
		if data, err := json.Marshal(entry); err == nil {
			l.jsonFile.Write(append(data, '\n'))
		}
	}
}

// pairProperties converts variadic key/value arguments into a map. A dangling
// key without a value is kept with an empty value rather than dropped.
func pairProperties(keyvals []interface{}) map[string]interface{} {
	if len(keyvals) == 0 {
		return nil
	}
	props := make(map[string]interface{}, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprintf("%v", keyvals[i])
		if i+1 < len(keyvals) {
			props[key] = keyvals[i+1]
		} else {
			props[key] = ""
		}
	}
	return props
}

// internal/logging/logging.go
// Package logging routes the process log to the console and an optional
// append-only log file.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	mu      sync.Mutex
	logFile *os.File
	debug   atomic.Bool
)

// Init sends log output to stdout and, when logPath is set, to logPath.
func Init(logPath string) error {
	return initWith(os.Stdout, logPath)
}

// InitWorker is Init for the analysis worker. Its stdout carries the wire
// protocol, so console output goes to stderr instead.
func InitWorker(logPath string) error {
	return initWith(os.Stderr, logPath)
}

func initWith(console io.Writer, logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	writers := []io.Writer{console}

	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = file
		writers = append(writers, logFile)
	}

	log.SetOutput(io.MultiWriter(writers...))
	return nil
}

// Close detaches and closes the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	err := logFile.Close()
	logFile = nil
	return err
}

// SetDebug toggles wire-level request logging.
func SetDebug(on bool) { debug.Store(on) }

// Debug reports whether wire-level request logging is on.
func Debug() bool { return debug.Load() }

func LogEvent(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Println(msg)
}

// LogRequest records one wire frame. It is a no-op unless debug is on.
func LogRequest(direction, method string, id any, payload any) {
	if !debug.Load() {
		return
	}
	log.Println(buildRequestMessage(direction, method, id, payload))
}

func buildRequestMessage(direction, method string, id any, payload any) string {
	dir := strings.ToUpper(strings.TrimSpace(direction))
	methodValue := strings.TrimSpace(method)
	if methodValue == "" {
		methodValue = "response"
	}
	parts := []string{fmt.Sprintf("[%s]", dir)}
	parts = append(parts, fmt.Sprintf("method=%s", methodValue))
	if id != nil {
		parts = append(parts, fmt.Sprintf("id=%v", id))
	}
	parts = append(parts, fmt.Sprintf("payload=%s", formatPayload(payload)))
	return strings.Join(parts, " ")
}

// Attachment summarizes a binary attachment in request logs.
type Attachment []byte

func (a Attachment) String() string { return fmt.Sprintf("<binary %d bytes>", len(a)) }

func formatPayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return "null"
	case string:
		if strings.TrimSpace(v) == "" {
			return `""`
		}
		return v
	case []byte:
		if len(v) == 0 {
			return "[]"
		}
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultPath is the engine log file, relative to the working directory.
const DefaultPath = "logs/engine.log"

// maxLines bounds the in-memory tail.
const maxLines = 1000

// Logger keeps the most recent log lines in memory and appends every line to
// a file on disk. Structured records go through Slog.
type Logger struct {
	mu    sync.Mutex
	lines []string
	path  string
	slog  *slog.Logger
}

// New returns a Logger writing to path at the given level and ensures the
// directory exists. An empty path keeps lines in memory only.
func New(path string, level slog.Level) *Logger {
	if path != "" {
		_ = os.MkdirAll(filepath.Dir(path), 0755)
	}
	l := &Logger{path: path, lines: make([]string, 0)}
	l.slog = slog.New(slog.NewTextHandler(l, &slog.HandlerOptions{Level: level}))
	return l
}

// Slog returns the structured logger backed by l.
func (l *Logger) Slog() *slog.Logger { return l.slog }

// Log appends a free-form line prefixed with [timestamp] using computer time.
func (l *Logger) Log(line string) {
	ts := time.Now().Format("2006-01-02 15:04:05")
	l.append("[" + ts + "] " + line)
}

// Write implements io.Writer for the slog handler; each call is one record.
func (l *Logger) Write(p []byte) (int, error) {
	l.append(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func (l *Logger) append(line string) {
	l.mu.Lock()
	l.lines = append(l.lines, line)
	if len(l.lines) > maxLines {
		l.lines = append(l.lines[:0:0], l.lines[len(l.lines)-maxLines:]...)
	}
	l.mu.Unlock()

	if l.path == "" {
		return
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	_, _ = f.WriteString(line + "\n")
	_ = f.Close()
}

// Lines returns a copy of the stored lines.
func (l *Logger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

// Discard returns a slog logger that drops everything, for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

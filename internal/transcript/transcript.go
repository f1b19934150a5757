// Package transcript writes conversation turns as NDJSON, one file per
// session, without blocking the request path.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Event is one transcript line.
type Event struct {
	Timestamp  time.Time `json:"ts"`
	Namespace  string    `json:"namespace"`
	SessionID  string    `json:"session_id"`
	Channel    string    `json:"channel,omitempty"`
	Direction  string    `json:"direction"`
	EventType  string    `json:"event_type"`
	Content    string    `json:"content"`
	ContentRaw string    `json:"content_raw,omitempty"`
	Degraded   bool      `json:"degraded,omitempty"`
}

// Recorder accepts transcript events.
type Recorder interface {
	Log(Event)
}

// Nop discards every event.
type Nop struct{}

// Log implements Recorder.
func (Nop) Log(Event) {}

// Config controls the file logger.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Logger is an asynchronous NDJSON Recorder. Events are dropped with a
// warning when the queue is full.
type Logger struct {
	dir    string
	queue  chan Event
	logger *slog.Logger

	mu      sync.Mutex
	files   map[string]*os.File
	closed  bool
	done    chan struct{}
	dropped int
}

// New returns a Nop when transcripts are disabled, otherwise a running Logger.
func New(cfg Config, logger *slog.Logger) (Recorder, func() error, error) {
	if !cfg.Enabled {
		return Nop{}, func() error { return nil }, nil
	}
	l, err := NewLogger(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return l, l.Close, nil
}

// NewLogger creates the transcript directory and starts the writer goroutine.
func NewLogger(cfg Config, logger *slog.Logger) (*Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("transcript directory is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	l := &Logger{
		dir:    cfg.Dir,
		queue:  make(chan Event, cfg.QueueSize),
		logger: logger,
		files:  make(map[string]*os.File),
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Log enqueues ev. It never blocks.
func (l *Logger) Log(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.ContentRaw == "" {
		ev.ContentRaw = ev.Content
	}
	ev.Content = cleanForReadability(ev.ContentRaw)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- ev:
	default:
		l.dropped++
		l.logger.Warn("transcript queue full, dropping event",
			"namespace", ev.Namespace,
			"session_id", ev.SessionID,
			"dropped", l.dropped)
	}
}

// Close drains pending events and closes all files.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done

	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (l *Logger) run() {
	defer close(l.done)
	for ev := range l.queue {
		if err := l.write(ev); err != nil {
			l.logger.Warn("failed to write transcript event",
				"namespace", ev.Namespace,
				"session_id", ev.SessionID,
				"error", err)
		}
	}
}

func (l *Logger) write(ev Event) error {
	f, err := l.file(ev.Namespace, ev.SessionID)
	if err != nil {
		return err
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// file is only called from the writer goroutine.
func (l *Logger) file(namespace, sessionID string) (*os.File, error) {
	ns := safeName(namespace, "default")
	sid := safeName(sessionID, "anonymous")
	key := ns + "/" + sid
	if f, ok := l.files[key]; ok {
		return f, nil
	}

	dir := filepath.Join(l.dir, ns)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create namespace dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, sid+".ndjson"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // name is sanitized
	if err != nil {
		return nil, fmt.Errorf("open transcript file: %w", err)
	}
	l.files[key] = f
	return f, nil
}

var (
	ansiPattern   = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	unsafePattern = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
)

// cleanForReadability strips escape sequences and control characters and
// collapses runs of whitespace.
func cleanForReadability(s string) string {
	s = ansiPattern.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func safeName(s, fallback string) string {
	s = unsafePattern.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, ".")
	if s == "" {
		return fallback
	}
	return s
}

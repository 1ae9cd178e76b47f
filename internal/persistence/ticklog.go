package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/mini-tycoon/internal/engine"
)

// JSONLZstdWriter appends JSON lines to zstd-compressed files, one file per
// UTC hour.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// TickEntry is one line of the tick log.
type TickEntry struct {
	Epoch    uint64       `json:"epoch"`
	Tick     uint64       `json:"tick"`
	Clock    string       `json:"clock"`
	Pending  int          `json:"pending"`
	InFlight bool         `json:"in_flight"`
	Winner   string       `json:"winner,omitempty"`
	Agents   []AgentState `json:"agents"`
}

// AgentState is the per-agent part of a tick entry.
type AgentState struct {
	ID     string  `json:"id"`
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Status string  `json:"status"`
	Money  float64 `json:"money"`
}

// NewTickEntry condenses a snapshot into a log line.
func NewTickEntry(s engine.Snapshot) TickEntry {
	e := TickEntry{
		Epoch:    s.Epoch,
		Tick:     s.Tick,
		Clock:    s.Clock,
		Pending:  len(s.Pending),
		InFlight: s.InFlight,
		Agents:   make([]AgentState, len(s.Agents)),
	}
	if s.Winner != nil {
		e.Winner = string(s.Winner.ID)
	}
	for i, a := range s.Agents {
		e.Agents[i] = AgentState{
			ID:     string(a.ID),
			X:      a.Position.X,
			Y:      a.Position.Y,
			Status: a.Status.String(),
			Money:  a.Stats.Money,
		}
	}
	return e
}

// TickLog writes one compressed JSONL entry per tick.
type TickLog struct{ w *JSONLZstdWriter }

func NewTickLog(dir string) *TickLog {
	return &TickLog{w: NewJSONLZstdWriter(dir, "ticks")}
}

func (l *TickLog) Write(e TickEntry) error { return l.w.Write(e) }
func (l *TickLog) Close() error            { return l.w.Close() }

// Package archive writes the append-only tick feed to disk as hourly-rotated
// zstd-compressed JSONL files. The archive is a side channel for offline
// analysis; the simulation never reads it back.
package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/civitas/internal/engine"
	"github.com/talgya/civitas/internal/store"
)

// FeedEntry is one archived tick.
type FeedEntry struct {
	Tick     uint64                `json:"tick"`
	Wrote    time.Time             `json:"wrote"`
	Snapshot *engine.Snapshot      `json:"snapshot"`
	Events   []store.Event         `json:"events,omitempty"`
	Results  []engine.ActionResult `json:"results,omitempty"`
}

// FeedWriter appends tick feed entries, rotating the output file hourly.
type FeedWriter struct {
	baseDir string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

// NewFeedWriter creates a writer rooted at baseDir. Files are created lazily
// on first write.
func NewFeedWriter(baseDir string) *FeedWriter {
	return &FeedWriter{baseDir: baseDir}
}

// WriteTick archives one tick's output.
func (fw *FeedWriter) WriteTick(out engine.TickOutput) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != fw.curHour {
		if err := fw.rotateLocked(hour); err != nil {
			return err
		}
	}

	entry := FeedEntry{
		Tick:     out.Tick,
		Wrote:    time.Now().UTC(),
		Snapshot: out.Snapshot,
		Events:   out.Events,
		Results:  out.Results,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := fw.w.Write(raw); err != nil {
		return err
	}
	if err := fw.w.WriteByte('\n'); err != nil {
		return err
	}
	return fw.w.Flush()
}

// Close flushes and closes the current segment.
func (fw *FeedWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.closeLocked()
}

func (fw *FeedWriter) rotateLocked(hour string) error {
	if err := fw.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(fw.baseDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(fw.baseDir, fmt.Sprintf("feed-%s.jsonl.zst", hour))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	fw.f = f
	fw.enc = enc
	fw.w = bufio.NewWriterSize(enc, 128*1024)
	fw.curHour = hour
	return nil
}

func (fw *FeedWriter) closeLocked() error {
	var errClose error
	if fw.w != nil {
		_ = fw.w.Flush()
	}
	if fw.enc != nil {
		errClose = fw.enc.Close()
		fw.enc = nil
	}
	if fw.f != nil {
		_ = fw.f.Close()
		fw.f = nil
	}
	fw.w = nil
	return errClose
}

package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"colony.ai/internal/protocol"
)

// JSONLZstdWriter appends JSON lines to zstd-compressed segment files named
// <prefix>-<segment>.jsonl.zst. A new file is opened whenever the segment
// changes.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu     sync.Mutex
	curSeg string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(segment string, v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if segment != w.curSeg || w.w == nil {
		if err := w.rotateLocked(segment); err != nil {
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

func (w *JSONLZstdWriter) rotateLocked(segment string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathFor(segment), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
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
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curSeg = segment
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathFor(segment string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, segment))
}

// TickLogger writes one TickSummary per tick (compressed). Every segmentTicks
// ticks it starts a new file named after the segment's first tick.
type TickLogger struct {
	w            *JSONLZstdWriter
	segmentTicks uint64
}

func NewTickLogger(dir string, segmentTicks uint64) *TickLogger {
	if segmentTicks == 0 {
		segmentTicks = 10000
	}
	return &TickLogger{w: NewJSONLZstdWriter(dir, "ticks"), segmentTicks: segmentTicks}
}

func (l *TickLogger) WriteTick(s protocol.TickSummary) error {
	start := s.Tick - s.Tick%l.segmentTicks
	return l.w.Write(strconv.FormatUint(start, 10), s)
}

func (l *TickLogger) Close() error { return l.w.Close() }

// Segments lists the tick log files in dir ordered by their first tick.
func Segments(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "ticks-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	start := func(p string) uint64 {
		s := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(p), "ticks-"), ".jsonl.zst")
		n, _ := strconv.ParseUint(s, 10, 64)
		return n
	}
	sort.Slice(matches, func(i, j int) bool { return start(matches[i]) < start(matches[j]) })
	return matches, nil
}

// ReadTicks decodes every summary in one segment file. Files appended to
// across restarts hold several zstd frames; the decoder reads through all of
// them.
func ReadTicks(path string) ([]protocol.TickSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var out []protocol.TickSummary
	dec := json.NewDecoder(bufio.NewReader(zr))
	for {
		var s protocol.TickSummary
		if err := dec.Decode(&s); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		out = append(out, s)
	}
}

// Package log writes hourly-rotated, zstd-compressed JSONL streams: the
// tick log under events/ and the command audit under audit/.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"eyes.sim/internal/sim/world"
)

const hourLayout = "2006-01-02-15"

// stream appends JSON lines of T to <dir>/<prefix>-<hour>.jsonl.zst and
// moves to a new file when the UTC hour changes. Every line is flushed
// through the encoder so a crash loses at most the unterminated frame.
type stream[T any] struct {
	dir    string
	prefix string
	now    func() time.Time

	mu      sync.Mutex
	seg     *segment
	written atomic.Uint64
}

func newStream[T any](dir, prefix string) *stream[T] {
	return &stream[T]{dir: dir, prefix: prefix, now: time.Now}
}

type segment struct {
	hour string
	file *os.File
	zw   *zstd.Encoder
	buf  *bufio.Writer
}

// openSegment appends to path. Reopening an existing hour starts a new
// zstd frame; concatenated frames decode as one stream.
func openSegment(path, hour string) (*segment, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{hour: hour, file: f, zw: zw, buf: bufio.NewWriterSize(zw, 64*1024)}, nil
}

func (g *segment) close() error {
	return errors.Join(g.buf.Flush(), g.zw.Close(), g.file.Close())
}

func (s *stream[T]) append(v T) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", s.prefix, err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if hour := s.now().UTC().Format(hourLayout); s.seg == nil || s.seg.hour != hour {
		if err := s.rotateLocked(hour); err != nil {
			return fmt.Errorf("%s: rotate: %w", s.prefix, err)
		}
	}
	if _, err := s.seg.buf.Write(line); err != nil {
		return err
	}
	if err := s.seg.buf.Flush(); err != nil {
		return err
	}
	s.written.Add(1)
	return nil
}

func (s *stream[T]) rotateLocked(hour string) error {
	if s.seg != nil {
		err := s.seg.close()
		s.seg = nil
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	seg, err := openSegment(filepath.Join(s.dir, fmt.Sprintf("%s-%s.jsonl.zst", s.prefix, hour)), hour)
	if err != nil {
		return err
	}
	s.seg = seg
	return nil
}

func (s *stream[T]) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seg == nil {
		return nil
	}
	err := s.seg.close()
	s.seg = nil
	return err
}

// TickLogger writes one JSONL entry every log interval under events/.
type TickLogger struct{ s *stream[world.TickLogEntry] }

func NewTickLogger(dataDir string) *TickLogger {
	return &TickLogger{s: newStream[world.TickLogEntry](filepath.Join(dataDir, "events"), "events")}
}

func (l *TickLogger) WriteTick(e world.TickLogEntry) error { return l.s.append(e) }
func (l *TickLogger) Written() uint64                      { return l.s.written.Load() }
func (l *TickLogger) Close() error                         { return l.s.close() }

// AuditLogger writes one JSONL entry per applied command under audit/.
type AuditLogger struct{ s *stream[world.AuditEntry] }

func NewAuditLogger(dataDir string) *AuditLogger {
	return &AuditLogger{s: newStream[world.AuditEntry](filepath.Join(dataDir, "audit"), "audit")}
}

func (l *AuditLogger) WriteAudit(e world.AuditEntry) error { return l.s.append(e) }
func (l *AuditLogger) Written() uint64                     { return l.s.written.Load() }
func (l *AuditLogger) Close() error                        { return l.s.close() }

// Files lists the prefix-*.jsonl.zst files in dir in chronological order.
func Files(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, prefix+"-") || !strings.HasSuffix(n, ".jsonl.zst") {
			continue
		}
		out = append(out, filepath.Join(dir, n))
	}
	sort.Strings(out)
	return out, nil
}

// ReadTicks yields every tick log entry under dir in file order. A
// truncated tail left by a crashed writer ends the stream without error.
func ReadTicks(dir string) iter.Seq2[world.TickLogEntry, error] {
	return func(yield func(world.TickLogEntry, error) bool) {
		files, err := Files(dir, "events")
		if err != nil {
			yield(world.TickLogEntry{}, err)
			return
		}
		for _, path := range files {
			if !readFile(path, yield) {
				return
			}
		}
	}
}

func readFile[T any](path string, yield func(T, error) bool) bool {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return yield(zero, err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return yield(zero, err)
	}
	defer dec.Close()

	jd := json.NewDecoder(dec)
	for {
		var v T
		err := jd.Decode(&v)
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return true
		}
		if err != nil {
			return yield(zero, fmt.Errorf("%s: %w", filepath.Base(path), err))
		}
		if !yield(v, nil) {
			return false
		}
	}
}

// ReadAudit yields every audit entry under dir in file order.
func ReadAudit(dir string) iter.Seq2[world.AuditEntry, error] {
	return func(yield func(world.AuditEntry, error) bool) {
		files, err := Files(dir, "audit")
		if err != nil {
			yield(world.AuditEntry{}, err)
			return
		}
		for _, path := range files {
			if !readFile(path, yield) {
				return
			}
		}
	}
}

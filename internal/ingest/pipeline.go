// Package ingest tails the harvester debug log, across rotations, into a
// window.Store.
package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/keilerkonzept/harvestgraph/internal/harvest"
	"github.com/keilerkonzept/harvestgraph/internal/window"
)

// DefaultLogName is the canonical file the harvester writes to.
const DefaultLogName = "debug.log"

// headLen is how much of the file start is remembered to recognise a file
// that was truncated and rewritten past the read offset.
const headLen = 64

// Store is the part of window.Store the pipeline feeds.
type Store interface {
	Newest() time.Time
	Ingest(harvest.Record) (window.Outcome, error)
}

// Stats counts what the pipeline has seen since it was created.
type Stats struct {
	Lines     int
	Records   int
	Accepted  int
	Dropped   int
	Duplicate int
	Overlong  int
	Reopens   int
}

// Options configures a Pipeline.
type Options struct {
	Name    string // log file name inside the directory
	MaxLine int    // longer lines are skipped
	Logger  log.Logger
	// OnLine is called with every complete line before parsing.
	OnLine func(line []byte)
}

// Pipeline reads newly appended lines of the current log file.
type Pipeline struct {
	dir     string
	name    string
	maxLine int
	parser  *harvest.Parser
	store   Store
	logger  log.Logger
	onLine  func([]byte)

	f        *os.File
	rd       *bufio.Reader
	offset   int64 // bytes consumed from f, including any buffered partial line
	partial  []byte
	overlong bool
	head     []byte
	missing  string // last path reported as not present

	stats Stats
}

// New creates a pipeline for dir. Nothing is opened until Open is called.
func New(dir string, parser *harvest.Parser, store Store, opts Options) *Pipeline {
	if opts.Name == "" {
		opts.Name = DefaultLogName
	}
	if opts.MaxLine <= 0 {
		opts.MaxLine = 4096
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	return &Pipeline{
		dir:     dir,
		name:    opts.Name,
		maxLine: opts.MaxLine,
		parser:  parser,
		store:   store,
		logger:  opts.Logger,
		onLine:  opts.OnLine,
	}
}

// Path returns the canonical log file path.
func (p *Pipeline) Path() string { return filepath.Join(p.dir, p.name) }

// Name returns the canonical log file name.
func (p *Pipeline) Name() string { return p.name }

// Stats returns the running counters.
func (p *Pipeline) Stats() Stats { return p.stats }

// Open (re)opens the canonical log file from its start. A missing file is
// not an error: ok is false and the next create event retries.
func (p *Pipeline) Open() (ok bool, err error) {
	return p.OpenPath(p.Path())
}

// OpenPath closes the current handle and opens path from its start.
func (p *Pipeline) OpenPath(path string) (ok bool, err error) {
	p.Close()
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		if p.missing != path {
			level.Info(p.logger).Log("msg", "log file not present yet", "path", path)
		}
		p.missing = path
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "open log")
	}
	p.missing = ""
	p.f = f
	p.rd = bufio.NewReaderSize(f, 64*1024)
	p.offset = 0
	p.partial = p.partial[:0]
	p.overlong = false
	p.head = p.head[:0]
	return true, nil
}

// Close releases the current handle, if any.
func (p *Pipeline) Close() error {
	if p.f == nil {
		return nil
	}
	err := p.f.Close()
	p.f, p.rd = nil, nil
	return err
}

// Drain reads complete lines up to end of file, feeding records into the
// store. A trailing line without a newline is kept for the next call.
// Errors are fatal: either the file became unreadable or the parser or the
// store detected corrupted time.
func (p *Pipeline) Drain() (int, error) {
	if p.rd == nil {
		return 0, nil
	}
	lines := 0
	for {
		chunk, err := p.rd.ReadSlice('\n')
		p.offset += int64(len(chunk))
		switch {
		case err == nil:
			line := chunk
			if len(p.partial) > 0 || p.overlong {
				p.partial = append(p.partial, chunk...)
				line = p.partial
			}
			skip := p.overlong || len(line) > p.maxLine
			p.partial = p.partial[:0]
			p.overlong = false
			lines++
			p.stats.Lines++
			if skip {
				p.stats.Overlong++
				level.Warn(p.logger).Log("msg", "skipping overlong line", "path", p.Path(), "limit", p.maxLine)
				continue
			}
			if err := p.line(line); err != nil {
				return lines, err
			}
		case err == bufio.ErrBufferFull || err == io.EOF:
			if !p.overlong {
				p.partial = append(p.partial, chunk...)
				if len(p.partial) > p.maxLine {
					p.overlong = true
					p.partial = p.partial[:0]
				}
			}
			if err == io.EOF {
				p.noteHead()
				return lines, nil
			}
		default:
			return lines, errors.Wrap(err, "read log")
		}
	}
}

func (p *Pipeline) line(line []byte) error {
	if p.onLine != nil {
		p.onLine(line)
	}
	rec, ok, err := p.parser.Parse(line)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	p.stats.Records++
	if !rec.Stamp.After(p.store.Newest()) {
		p.stats.Duplicate++
		return nil
	}
	out, err := p.store.Ingest(rec)
	if err != nil {
		return errors.Wrapf(err, "ingest %s", bytes.TrimSpace(line))
	}
	switch out {
	case window.Accepted:
		p.stats.Accepted++
	case window.DroppedTooOld:
		p.stats.Dropped++
	}
	return nil
}

// Reopen starts over on the canonical file and drains it. It is called when
// the harvester rotated its log.
func (p *Pipeline) Reopen() (int, error) {
	ok, err := p.Open()
	if err != nil || !ok {
		return 0, err
	}
	p.stats.Reopens++
	n, err := p.Drain()
	level.Info(p.logger).Log("msg", "reopened log", "path", p.Path(), "lines", n)
	return n, err
}

// Check detects a replaced or truncated file without relying on
// notifications, and drains whatever is new.
func (p *Pipeline) Check() (int, error) {
	if p.f == nil {
		return p.Reopen()
	}
	onDisk, err := os.Stat(p.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p.Drain()
		}
		return 0, errors.Wrap(err, "stat log")
	}
	open, err := p.f.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat open log")
	}
	if !os.SameFile(onDisk, open) {
		level.Info(p.logger).Log("msg", "log replaced", "path", p.Path())
		n, err := p.Drain()
		if err != nil {
			return n, err
		}
		m, err := p.Reopen()
		return n + m, err
	}
	rewritten, err := p.rewritten()
	if err != nil {
		return 0, err
	}
	if open.Size() < p.offset || rewritten {
		level.Info(p.logger).Log("msg", "log truncated", "path", p.Path(), "size", open.Size(), "offset", p.offset)
		if _, err := p.f.Seek(0, io.SeekStart); err != nil {
			return 0, errors.Wrap(err, "rewind log")
		}
		p.rd.Reset(p.f)
		p.offset = 0
		p.partial = p.partial[:0]
		p.overlong = false
		p.head = p.head[:0]
	}
	return p.Drain()
}

// noteHead remembers the first bytes already read from the file.
func (p *Pipeline) noteHead() {
	n := min(int64(headLen), p.offset)
	if int64(len(p.head)) >= n {
		return
	}
	buf := make([]byte, n)
	got, _ := p.f.ReadAt(buf, 0)
	p.head = buf[:got]
}

// rewritten reports whether the start of the file no longer matches what
// was read from it.
func (p *Pipeline) rewritten() (bool, error) {
	if len(p.head) == 0 {
		return false, nil
	}
	buf := make([]byte, len(p.head))
	n, err := p.f.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return false, errors.Wrap(err, "read log head")
	}
	return !bytes.Equal(buf[:n], p.head), nil
}

// Backfill reads up to count rotated siblings (name.count down to name.1)
// oldest first, then opens the canonical file and drains it.
func (p *Pipeline) Backfill(count int) (int, error) {
	total := 0
	for i := count; i >= 1; i-- {
		path := filepath.Join(p.dir, fmt.Sprintf("%s.%d", p.name, i))
		ok, err := p.OpenPath(path)
		if err != nil {
			return total, err
		}
		if !ok {
			continue
		}
		n, err := p.Drain()
		total += n
		if err != nil {
			return total, err
		}
		level.Info(p.logger).Log("msg", "read rotated log", "path", path, "lines", n)
	}
	ok, err := p.Open()
	if err != nil || !ok {
		p.Close()
		return total, err
	}
	n, err := p.Drain()
	level.Info(p.logger).Log("msg", "read log", "path", p.Path(), "lines", n)
	return total + n, err
}

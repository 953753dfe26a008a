// Package journal persists the session's event stream: JSON-line
// segment files on disk, an optional Postgres event store, and a
// single-row dashboard snapshot. The full session history is
// reconstructable from the event stream alone.
package journal

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"main/internal/model"
	"main/pkg/exception"
)

const (
	defaultSegmentMaxBytes int64 = 64 << 20
	defaultQueueSize             = 4096
	defaultBufferSize            = 64 * 1024
	defaultFilePrefix            = "events"
)

var defaultSegmentMaxDuration = time.Hour

// Config controls the file writer.
type Config struct {
	Dir                string        `json:"dir"`
	SegmentMaxBytes    int64         `json:"segmentMaxBytes"`
	SegmentMaxDuration time.Duration `json:"segmentMaxDuration"`
	QueueSize          int           `json:"queueSize"`
	BufferSize         int           `json:"bufferSize"`
	FilePrefix         string        `json:"filePrefix"`
	FlushInterval      time.Duration `json:"flushInterval"`
}

// DefaultConfig returns a baseline file-writer configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                dir,
		SegmentMaxBytes:    defaultSegmentMaxBytes,
		SegmentMaxDuration: defaultSegmentMaxDuration,
		QueueSize:          defaultQueueSize,
		BufferSize:         defaultBufferSize,
		FilePrefix:         defaultFilePrefix,
		FlushInterval:      time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.SegmentMaxBytes == 0 {
		c.SegmentMaxBytes = defaultSegmentMaxBytes
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Dir == "" {
		return errors.New("invalid journal config: Dir is empty")
	}
	if c.SegmentMaxBytes <= 0 {
		return errors.New("invalid journal config: SegmentMaxBytes must be > 0")
	}
	if c.QueueSize <= 0 {
		return errors.New("invalid journal config: QueueSize must be > 0")
	}
	if c.FlushInterval < 0 {
		return errors.New("invalid journal config: FlushInterval must be >= 0")
	}
	return nil
}

// Writer appends events to JSON-line segments from a buffered queue.
// TryAppend never blocks the trading cycle; a full queue surfaces as
// an error the caller counts and drops.
type Writer struct {
	cfg Config
	ch  chan model.Event
	wg  sync.WaitGroup
	err atomic.Value

	seq     uint64
	started uint32
	closed  uint32
}

// NewWriter creates a journal writer and ensures the directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{cfg: cfg, ch: make(chan model.Event, cfg.QueueSize)}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&w.started, 0, 1) {
		return errors.New("journal: writer already started")
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

// Close stops the writer and flushes buffered events.
func (w *Writer) Close() error {
	if atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error observed by the writer loop, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// TryAppend stamps the event with the next sequence number and
// enqueues it without blocking.
func (w *Writer) TryAppend(event model.Event) error {
	if atomic.LoadUint32(&w.closed) != 0 {
		return exception.ErrJournalClosed
	}
	if atomic.LoadUint32(&w.started) == 0 {
		return exception.ErrJournalNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}

	event.Seq = atomic.AddUint64(&w.seq, 1)
	if event.TsNano == 0 {
		event.TsNano = time.Now().UTC().UnixNano()
	}

	select {
	case w.ch <- event:
		return nil
	default:
		return exception.ErrJournalQueueFull
	}
}

func (w *Writer) run(ctx context.Context) {
	var (
		seg    *segment
		segID  uint64
		flushC <-chan time.Time
	)
	if w.cfg.FlushInterval > 0 {
		ticker := time.NewTicker(w.cfg.FlushInterval)
		defer ticker.Stop()
		flushC = ticker.C
	}

	defer func() {
		if err := closeSegment(seg); err != nil && w.Err() == nil {
			w.setErr(err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.drainNonBlocking(&seg, &segID)
			return
		case event, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.writeEvent(&seg, &segID, event); err != nil {
				w.setErr(err)
				return
			}
		case <-flushC:
			if seg != nil {
				if err := seg.buf.Flush(); err != nil {
					w.setErr(err)
					return
				}
			}
		}
	}
}

func (w *Writer) drainNonBlocking(seg **segment, segID *uint64) {
	for {
		select {
		case event, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.writeEvent(seg, segID, event); err != nil {
				w.setErr(err)
				return
			}
		default:
			return
		}
	}
}

func (w *Writer) writeEvent(seg **segment, segID *uint64, event model.Event) error {
	line, err := sonic.ConfigFastest.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	line = append(line, '\n')

	now := time.Now().UTC()
	if w.shouldRotate(*seg, now, int64(len(line))) {
		if err := closeSegment(*seg); err != nil {
			return err
		}
		opened, err := w.openSegment(segID, now)
		if err != nil {
			return err
		}
		*seg = opened
	}

	if _, err := (*seg).buf.Write(line); err != nil {
		return err
	}
	(*seg).size += int64(len(line))
	return nil
}

func (w *Writer) shouldRotate(seg *segment, now time.Time, nextSize int64) bool {
	if seg == nil {
		return true
	}
	if w.cfg.SegmentMaxBytes > 0 && seg.size+nextSize > w.cfg.SegmentMaxBytes {
		return true
	}
	if w.cfg.SegmentMaxDuration > 0 && now.Sub(seg.openedAt) >= w.cfg.SegmentMaxDuration {
		return true
	}
	return false
}

func (w *Writer) openSegment(segID *uint64, now time.Time) (*segment, error) {
	ts := now.Format("20060102-150405")
	for {
		*segID = *segID + 1
		name := fmt.Sprintf("%s-%s-%06d.jsonl", w.cfg.FilePrefix, ts, *segID)
		path := filepath.Join(w.cfg.Dir, name)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, err
		}
		return &segment{
			file:     file,
			buf:      bufio.NewWriterSize(file, w.cfg.BufferSize),
			openedAt: now,
		}, nil
	}
}

func closeSegment(seg *segment) error {
	if seg == nil {
		return nil
	}
	if err := seg.buf.Flush(); err != nil {
		_ = seg.file.Close()
		return err
	}
	if err := seg.file.Sync(); err != nil {
		_ = seg.file.Close()
		return err
	}
	return seg.file.Close()
}

func (w *Writer) setErr(err error) {
	if err == nil || w.err.Load() != nil {
		return
	}
	w.err.Store(err)
}

type segment struct {
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}

// Package retryqueue is a durable, append-only NDJSON queue of User Service
// writes that failed and must be replayed later.
//
// Each line is one domain.RetryItem. Enqueue appends; Flush replays every
// "interaction" line, keeps the ones that still fail (in their original
// order), keeps lines of unknown type untouched, and drops lines that cannot
// be parsed. The remainder replaces the file through a temp file, fsync and
// rename, so a crash mid-flush leaves either the old or the new file.
package retryqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-messaging-gateway/internal/domain"
	"github.com/tbourn/go-messaging-gateway/internal/observability"
)

// DefaultPath is the queue file used when none is configured.
const DefaultPath = ".failed_interactions.log"

// ErrQueueCorruption marks a queue line that could not be decoded. Such lines
// are logged and dropped; the error is never returned by Flush.
var ErrQueueCorruption = errors.New("retry queue line is corrupt")

// ReplayFunc re-submits one interaction. It must not enqueue on failure.
type ReplayFunc func(ctx context.Context, in domain.Interaction) error

// Queue is safe for concurrent use. Flushes are serialized with each other;
// appends may interleave with a flush's replay phase and are carried over.
type Queue struct {
	path string

	flushMu sync.Mutex // one flush at a time
	fileMu  sync.Mutex // every read, append and rewrite of path
}

// New returns a Queue backed by path (DefaultPath when empty).
func New(path string) *Queue {
	if path == "" {
		path = DefaultPath
	}
	return &Queue{path: path}
}

// Path returns the queue file location.
func (q *Queue) Path() string { return q.path }

// Enqueue appends item as one JSON line. Failures are logged and swallowed:
// the caller is already on an error path and has nowhere better to put it.
func (q *Queue) Enqueue(ctx context.Context, item domain.RetryItem) {
	lg := observability.Logger(ctx)
	line, err := json.Marshal(item)
	if err != nil {
		lg.Error().Err(err).Str("type", item.Type).Msg("retry enqueue: marshal")
		return
	}
	line = append(line, '\n')

	q.fileMu.Lock()
	defer q.fileMu.Unlock()

	f, err := os.OpenFile(q.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		lg.Error().Err(err).Str("path", q.path).Msg("retry enqueue: open")
		return
	}
	if torn, err := endsMidLine(f); err != nil {
		lg.Warn().Err(err).Str("path", q.path).Msg("retry enqueue: inspect tail")
	} else if torn {
		// A partial record from an interrupted write stays on its own line.
		line = append([]byte{'\n'}, line...)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		lg.Error().Err(err).Str("path", q.path).Msg("retry enqueue: write")
		return
	}
	if err := f.Close(); err != nil {
		lg.Error().Err(err).Str("path", q.path).Msg("retry enqueue: close")
		return
	}
	observability.RetryEnqueuedTotal.Inc()
	lg.Warn().Str("type", item.Type).Msg("queued failed write for retry")
}

// endsMidLine reports whether f is non-empty and its last byte is not a
// newline.
func endsMidLine(f *os.File) (bool, error) {
	st, err := f.Stat()
	if err != nil {
		return false, err
	}
	if st.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, st.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

// Len returns the number of non-empty lines currently queued.
func (q *Queue) Len() (int, error) {
	q.fileMu.Lock()
	data, err := os.ReadFile(q.path)
	q.fileMu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read retry queue: %w", err)
	}
	n := 0
	for _, ln := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(ln)) > 0 {
			n++
		}
	}
	return n, nil
}

// Flush replays the queued interactions and returns how many succeeded.
// An absent queue file is not an error.
func (q *Queue) Flush(ctx context.Context, replay ReplayFunc) (int, error) {
	tr := otel.Tracer("retryqueue")
	ctx, span := tr.Start(ctx, "Flush", trace.WithAttributes(attribute.String("queue.path", q.path)))
	defer span.End()

	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	lg := observability.Logger(ctx)

	q.fileMu.Lock()
	data, err := os.ReadFile(q.path)
	q.fileMu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read retry queue: %w", err)
	}
	consumed := len(data)

	var keep bytes.Buffer
	replayed := 0
	for i, raw := range bytes.Split(data, []byte("\n")) {
		ln := bytes.TrimSpace(raw)
		if len(ln) == 0 {
			continue
		}

		var item domain.RetryItem
		if err := json.Unmarshal(ln, &item); err != nil {
			observability.RetryFlushTotal.WithLabelValues("corrupt").Inc()
			lg.Error().Err(fmt.Errorf("%w: line %d: %v", ErrQueueCorruption, i+1, err)).Msg("dropping retry line")
			continue
		}
		if item.Type != domain.RetryTypeInteraction {
			observability.RetryFlushTotal.WithLabelValues("skipped").Inc()
			keepLine(&keep, ln)
			continue
		}
		var in domain.Interaction
		if err := json.Unmarshal(item.Payload, &in); err != nil {
			observability.RetryFlushTotal.WithLabelValues("corrupt").Inc()
			lg.Error().Err(fmt.Errorf("%w: line %d payload: %v", ErrQueueCorruption, i+1, err)).Msg("dropping retry line")
			continue
		}
		if ctx.Err() != nil {
			keepLine(&keep, ln)
			continue
		}
		if err := replay(ctx, in); err != nil {
			observability.RetryFlushTotal.WithLabelValues("failed").Inc()
			lg.Debug().Err(err).Str("user_id", in.UserID).Msg("retry replay failed, keeping")
			keepLine(&keep, ln)
			continue
		}
		observability.RetryFlushTotal.WithLabelValues("replayed").Inc()
		replayed++
	}

	if err := q.rewrite(keep.Bytes(), consumed); err != nil {
		span.RecordError(err)
		return replayed, err
	}
	span.SetAttributes(attribute.Int("queue.replayed", replayed))
	if replayed > 0 {
		lg.Info().Int("replayed", replayed).Msg("retry queue flushed")
	}
	return replayed, nil
}

// rewrite replaces the queue file with keep followed by whatever was appended
// after the first consumed bytes were read.
func (q *Queue) rewrite(keep []byte, consumed int) error {
	q.fileMu.Lock()
	defer q.fileMu.Unlock()

	current, err := os.ReadFile(q.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reread retry queue: %w", err)
	}
	var tail []byte
	if len(current) > consumed {
		tail = current[consumed:]
	}

	out := make([]byte, 0, len(keep)+len(tail))
	out = append(out, keep...)
	out = append(out, tail...)

	if len(bytes.TrimSpace(out)) == 0 {
		if err := os.Remove(q.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove retry queue: %w", err)
		}
		return nil
	}
	return writeAtomic(q.path, out)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp: %w", err)
	}
	return nil
}

func keepLine(buf *bytes.Buffer, ln []byte) {
	buf.Write(ln)
	buf.WriteByte('\n')
}

// Run flushes every interval until ctx is done. A non-positive interval
// disables periodic flushing.
func (q *Queue) Run(ctx context.Context, interval time.Duration, replay ReplayFunc) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := q.Flush(ctx, replay); err != nil {
				log.Error().Err(err).Str("path", q.path).Msg("periodic retry flush failed")
			}
		}
	}
}

// Package feedback implements the Feedback Recorder (C11): an append-only
// JSON-lines log of user outcomes linked to pattern/template/fix ids.
// Grounded on the source engine's OperationalMetrics tracking in types.go
// and the durable-write idiom in improvements.go's ResourceManager,
// generalized into an O_APPEND log with periodic fsync per §4.11.
package feedback

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/wardenci/warden/internal/errs"
	"github.com/wardenci/warden/internal/model"
)

// DefaultFlushEvery and DefaultFlushInterval are the "whichever first"
// fsync triggers from §4.11.
const (
	DefaultFlushEvery    = 20
	DefaultFlushInterval = 5 * time.Second
)

// Recorder appends UserFeedback records to an append-only log file.
type Recorder struct {
	mu            sync.Mutex
	path          string
	file          *os.File
	sinceFlush    int
	lastFlush     time.Time
	flushEvery    int
	flushInterval time.Duration
}

// New opens (creating if needed) the feedback log at path.
func New(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, "open feedback log "+path, err)
	}
	return &Recorder{
		path:          path,
		file:          f,
		lastFlush:     time.Now(),
		flushEvery:    DefaultFlushEvery,
		flushInterval: DefaultFlushInterval,
	}, nil
}

// Record appends one feedback line. A write error is surfaced; there is no
// in-memory retry queue — feedback loss on disk failure is accepted and
// reported (§4.11 failure semantics).
func (r *Recorder) Record(fb model.UserFeedback) error {
	line, err := json.Marshal(fb)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.file.Write(line); err != nil {
		return errs.Wrap(errs.KindIO, "append feedback record", err)
	}
	r.sinceFlush++
	if r.sinceFlush >= r.flushEvery || time.Since(r.lastFlush) >= r.flushInterval {
		if err := r.file.Sync(); err != nil {
			return errs.Wrap(errs.KindIO, "fsync feedback log", err)
		}
		r.sinceFlush = 0
		r.lastFlush = time.Now()
	}
	return nil
}

// Close fsyncs and closes the underlying file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.file.Sync()
	return r.file.Close()
}

// All reads every recorded feedback line from disk, in append order.
func (r *Recorder) All() ([]model.UserFeedback, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, "read feedback log", err)
	}
	defer f.Close()

	var out []model.UserFeedback
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var fb model.UserFeedback
		if err := json.Unmarshal(line, &fb); err != nil {
			continue // a malformed line is skipped, not fatal
		}
		out = append(out, fb)
	}
	return out, scanner.Err()
}

// ByPattern groups every recorded feedback by pattern id.
func (r *Recorder) ByPattern() (map[string][]model.UserFeedback, error) {
	all, err := r.All()
	if err != nil {
		return nil, err
	}
	out := map[string][]model.UserFeedback{}
	for _, fb := range all {
		out[fb.PatternID] = append(out[fb.PatternID], fb)
	}
	return out, nil
}

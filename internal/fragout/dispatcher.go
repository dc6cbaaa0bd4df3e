package fragout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/11bDev-FOB/fragout-sub000/internal/logutil"
	"github.com/google/uuid"
)

// Whole-request validation errors. These reject a dispatch before any
// platform work begins; per-platform failures never surface here.
var (
	ErrEmptyText   = errors.New("post text is empty")
	ErrNoPlatforms = errors.New("no platforms requested")
)

// Result is the per-platform outcome of one dispatch.
type Result struct {
	Success bool
	PostID  string
	URL     string
	Error   string
}

// Job status derived from the per-platform results. Partial success is still
// "failed" at the job level; individual results stay visible.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Report aggregates one dispatch: one Result per requested platform, plus
// the derived job status.
type Report struct {
	ID      string
	Status  string
	Results map[string]Result
}

// LogEntry is one post-log record, emitted per (dispatch, platform) attempt.
// Text is recorded by length only; content and credentials never reach the
// log sink.
type LogEntry struct {
	DispatchID string
	UserID     string
	Platform   string
	Success    bool
	PostID     string
	TextLength int
	HasImages  bool
	Error      string
	At         time.Time
}

// PostLogger receives best-effort post-log records.
type PostLogger interface {
	RecordPost(ctx context.Context, entry LogEntry) error
}

// DispatcherOptions tunes a Dispatcher. Zero values pick the defaults noted
// on each field.
type DispatcherOptions struct {
	Decrypt   Decrypter     // nil: store holds plaintext
	PostLog   PostLogger    // nil: no post log
	Timeout   time.Duration // per-platform attempt bound, default 30s
	LogBuffer int           // pending log records before drops, default 64
}

const (
	defaultAttemptTimeout = 30 * time.Second
	defaultLogBuffer      = 64
)

// Dispatcher fans a single post out to the requested platforms. Each
// platform attempt is independent: its own credentials, its own timeout, its
// own result. One platform failing, timing out, or panicking never affects
// the others.
type Dispatcher struct {
	registry *Registry
	creds    CredentialSource
	decrypt  Decrypter
	timeout  time.Duration

	logCh  chan LogEntry
	logWG  sync.WaitGroup
	closed sync.Once
	logOn  bool
}

// NewDispatcher wires a dispatcher to its registry and credential source.
func NewDispatcher(registry *Registry, creds CredentialSource, opts DispatcherOptions) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultAttemptTimeout
	}
	if opts.LogBuffer <= 0 {
		opts.LogBuffer = defaultLogBuffer
	}

	d := &Dispatcher{
		registry: registry,
		creds:    creds,
		decrypt:  opts.Decrypt,
		timeout:  opts.Timeout,
		logCh:    make(chan LogEntry, opts.LogBuffer),
	}

	if opts.PostLog != nil {
		d.logOn = true
		d.logWG.Add(1)
		go d.drainLog(opts.PostLog)
	}

	return d
}

// Dispatch publishes content to every requested platform on behalf of
// userID and returns one Result per platform. It returns an error only for
// whole-request validation failures; every platform-level failure is
// captured in the report instead.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, content PostContent, platforms []string) (*Report, error) {
	if strings.TrimSpace(content.Text) == "" {
		return nil, ErrEmptyText
	}

	targets := dedupe(platforms)
	if len(targets) == 0 {
		return nil, ErrNoPlatforms
	}
	for _, id := range targets {
		if _, ok := d.registry.Lookup(id); !ok {
			return nil, UnsupportedPlatformError{ID: id}
		}
	}

	// One store read per dispatch, independent of which platforms were
	// requested. The bags live on the stack of this call and nowhere else.
	stored := map[string]string{}
	records, err := d.creds.GetCredentials(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	for _, rec := range records {
		stored[rec.Platform] = rec.Ciphertext
	}

	report := &Report{
		ID:      uuid.NewString(),
		Results: make(map[string]Result, len(targets)),
	}

	results := make([]Result, len(targets))
	var wg sync.WaitGroup
	for i, id := range targets {
		ciphertext, ok := stored[id]
		if !ok {
			results[i] = Result{Success: false, Error: fmt.Sprintf("no credentials stored for %s", id)}
			continue
		}

		wg.Add(1)
		go func(i int, id, ciphertext string) {
			defer wg.Done()
			results[i] = d.attempt(ctx, id, content, ciphertext)
		}(i, id, ciphertext)
	}
	wg.Wait()

	status := StatusCompleted
	for i, id := range targets {
		report.Results[id] = results[i]
		if !results[i].Success {
			status = StatusFailed
		}
		d.emitLog(LogEntry{
			DispatchID: report.ID,
			UserID:     userID,
			Platform:   id,
			Success:    results[i].Success,
			PostID:     results[i].PostID,
			TextLength: len(content.Text),
			HasImages:  len(content.Images) > 0,
			Error:      results[i].Error,
			At:         time.Now().UTC(),
		})
	}
	report.Status = status

	return report, nil
}

// attempt runs one platform's publish under its own timeout, converting any
// error or panic into that platform's Result.
func (d *Dispatcher) attempt(ctx context.Context, id string, content PostContent, ciphertext string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			logutil.Errorf("adapter panic: platform=%s err=%v", id, r)
			res = Result{Success: false, Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	plaintext := ciphertext
	if d.decrypt != nil {
		var err error
		plaintext, err = d.decrypt(ciphertext)
		if err != nil {
			return Result{Success: false, Error: fmt.Sprintf("decrypt credentials: %v", err)}
		}
	}

	creds, err := ParseCredentials(plaintext)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}

	poster, ok := d.registry.Lookup(id)
	if !ok {
		// Checked before fan-out; kept for direct callers of attempt.
		return Result{Success: false, Error: UnsupportedPlatformError{ID: id}.Error()}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	post, err := poster.Post(attemptCtx, content, creds)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	if post == nil {
		return Result{Success: false, Error: "adapter returned no result"}
	}

	return Result{Success: true, PostID: post.PostID, URL: post.URL}
}

// emitLog queues a log record without ever blocking the dispatch. A slow or
// stalled sink fills the buffer and later records are dropped.
func (d *Dispatcher) emitLog(entry LogEntry) {
	if !d.logOn {
		return
	}
	select {
	case d.logCh <- entry:
	default:
		logutil.Warnf("post log buffer full, dropping record: platform=%s", entry.Platform)
	}
}

func (d *Dispatcher) drainLog(sink PostLogger) {
	defer d.logWG.Done()
	for entry := range d.logCh {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := sink.RecordPost(ctx, entry); err != nil {
			logutil.Warnf("post log write failed: platform=%s err=%v", entry.Platform, err)
		}
		cancel()
	}
}

// Close stops accepting log records and waits for pending ones to flush.
func (d *Dispatcher) Close() {
	d.closed.Do(func() {
		close(d.logCh)
	})
	d.logWG.Wait()
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := map[string]struct{}{}
	for _, raw := range ids {
		id := strings.TrimSpace(strings.ToLower(raw))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/loom/internal/config"
	"github.com/hpungsan/loom/internal/db"
	"github.com/hpungsan/loom/internal/draft"
	"github.com/hpungsan/loom/internal/errors"
	"github.com/hpungsan/loom/internal/llm"
	"github.com/hpungsan/loom/internal/logger"
	"github.com/hpungsan/loom/internal/outline"
	"github.com/hpungsan/loom/internal/prose"
)

// JobState is the orchestrator's lifecycle state.
type JobState string

const (
	StateIdle      JobState = "idle"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

// Progress is emitted while a job runs.
type Progress struct {
	JobID     string   `json:"job_id"`
	Chapter   int      `json:"chapter"`
	Part      int      `json:"part"`
	State     JobState `json:"state"`
	ElapsedMS int64    `json:"elapsed_ms"`
}

// JobSummary describes the current or most recent job.
type JobSummary struct {
	ID          string   `json:"id"`
	Chapter     int      `json:"chapter"`
	Part        int      `json:"part"`
	State       JobState `json:"state"`
	Message     string   `json:"message,omitempty"`
	ErrorCode   string   `json:"error_code,omitempty"`
	PromptChars int      `json:"prompt_chars"`
	OutputChars int      `json:"output_chars"`
	StartedAt   int64    `json:"started_at"`
	FinishedAt  int64    `json:"finished_at,omitempty"`
	ElapsedMS   int64    `json:"elapsed_ms"`
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	State   JobState    `json:"state"`
	Running bool        `json:"running"`
	Current *JobSummary `json:"current,omitempty"`
	LastJob *JobSummary `json:"last_job,omitempty"`
}

// OrchestratorDeps wires the orchestrator. Journal, Log and Now are optional.
type OrchestratorDeps struct {
	Store   *draft.Store
	Bundle  *outline.Bundle
	Backend llm.Backend
	Keys    *llm.KeyPool
	Config  *config.Config
	Journal *sql.DB
	Log     *logger.Logger
	Now     func() time.Time
}

// Orchestrator runs at most one generation job at a time.
type Orchestrator struct {
	deps OrchestratorDeps

	running atomic.Bool

	mu      sync.Mutex
	state   JobState
	current *JobSummary
	last    *JobSummary
}

// NewOrchestrator returns an idle orchestrator.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Config == nil {
		deps.Config = config.DefaultConfig()
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{deps: deps, state: StateIdle}
}

// GenerateInput contains parameters for the Generate operation.
type GenerateInput struct {
	Chapter    int // zero-based index
	Part       int // 1..3
	OnProgress func(Progress)
}

// GenerateOutput contains the result of a completed job.
type GenerateOutput struct {
	JobID          string `json:"job_id"`
	Chapter        int    `json:"chapter"`
	Part           int    `json:"part"`
	Text           string `json:"text"`
	Chars          int    `json:"chars"`
	TokensEstimate int    `json:"tokens_estimate"`
	ElapsedMS      int64  `json:"elapsed_ms"`
	Persisted      bool   `json:"persisted"`
	Warning        string `json:"warning,omitempty"`
	Message        string `json:"message"`
}

// Status reports the orchestrator state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{State: o.state, Running: o.running.Load()}
	if o.current != nil {
		c := *o.current
		c.ElapsedMS = o.deps.Now().Sub(time.UnixMilli(c.StartedAt)).Milliseconds()
		st.Current = &c
	}
	if o.last != nil {
		l := *o.last
		st.LastJob = &l
	}
	return st
}

// Generate produces the prose for one part of one chapter and saves it.
// A second call while a job is running returns BUSY without side effects.
// On failure the draft and its file are left untouched.
func (o *Orchestrator) Generate(ctx context.Context, input GenerateInput) (*GenerateOutput, error) {
	if err := draft.ValidatePart(input.Part); err != nil {
		return nil, err
	}
	if _, err := o.deps.Store.Get(input.Chapter); err != nil {
		return nil, err
	}

	if !o.running.CompareAndSwap(false, true) {
		o.mu.Lock()
		id := ""
		if o.current != nil {
			id = o.current.ID
		}
		o.mu.Unlock()
		return nil, errors.NewBusy(id)
	}

	start := o.deps.Now()
	id, err := generateULID(start)
	if err != nil {
		o.running.Store(false)
		return nil, errors.NewInternal(err)
	}
	job := &JobSummary{
		ID:        id,
		Chapter:   input.Chapter,
		Part:      input.Part,
		State:     StateRunning,
		StartedAt: start.UnixMilli(),
	}
	o.mu.Lock()
	o.state = StateRunning
	o.current = job
	o.mu.Unlock()

	out, err := o.run(ctx, job, start, input.OnProgress)
	o.finish(job, start, err)
	return out, err
}

func (o *Orchestrator) run(ctx context.Context, job *JobSummary, start time.Time, onProgress func(Progress)) (*GenerateOutput, error) {
	log := o.deps.Log.With("job_id", job.ID, "chapter", job.Chapter, "part", job.Part)

	snapshot, err := o.deps.Store.Get(job.Chapter)
	if err != nil {
		return nil, err
	}
	prompt := ComposePrompt(o.deps.Bundle, job.Chapter, snapshot, job.Part, o.deps.Config.ContinuationWindow)
	o.mu.Lock()
	job.PromptChars = prose.CountChars(prompt)
	o.mu.Unlock()
	log.Info("generation started", "prompt_chars", job.PromptChars)

	done := make(chan struct{})
	var raw string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(done)
		text, err := o.call(gctx, prompt)
		raw = text
		return err
	})
	g.Go(func() error {
		o.reportProgress(done, job, start, onProgress)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	text := prose.Sanitize(raw)
	if text == "" {
		return nil, errors.NewBackendFailure(stderrors.New("backend returned no usable text"))
	}
	o.mu.Lock()
	job.OutputChars = prose.CountChars(text)
	o.mu.Unlock()

	if err := o.deps.Store.SetPart(job.Chapter, job.Part, text); err != nil {
		return nil, err
	}

	out := &GenerateOutput{
		JobID:          job.ID,
		Chapter:        job.Chapter,
		Part:           job.Part,
		Text:           text,
		Chars:          job.OutputChars,
		TokensEstimate: prose.EstimateTokens(text),
		ElapsedMS:      o.deps.Now().Sub(start).Milliseconds(),
		Persisted:      true,
		Message:        fmt.Sprintf("part %d of chapter %d saved", job.Part, job.Chapter+1),
	}
	if err := o.deps.Store.Persist(); err != nil {
		log.Warn("draft generated but not saved", "error", err)
		out.Persisted = false
		out.Warning = err.Error()
		out.Message = fmt.Sprintf("part %d of chapter %d generated but not saved", job.Part, job.Chapter+1)
	}
	return out, nil
}

// call performs the single backend request for a job.
func (o *Orchestrator) call(ctx context.Context, prompt string) (string, error) {
	key, err := o.deps.Keys.Next()
	if err != nil {
		return "", err
	}
	if o.deps.Backend == nil {
		return "", errors.NewConfigurationMissing("generation backend")
	}

	cfg := o.deps.Config
	callCtx := ctx
	if cfg.RequestTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.RequestTimeoutSeconds)*time.Second)
		defer cancel()
	}

	text, err := o.deps.Backend.Generate(callCtx, key, llm.Request{
		Model:           cfg.Model,
		Prompt:          prompt,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
	})
	if err != nil {
		o.deps.Keys.ReportFailure(key)
		// callCtx ends on caller cancellation and on the per-call timeout.
		if callCtx.Err() != nil {
			return "", errors.NewCancelled("generation")
		}
		return "", errors.NewBackendFailure(err)
	}
	o.deps.Keys.ReportSuccess(key)
	return text, nil
}

// reportProgress emits one event immediately and then one per tick until done closes.
func (o *Orchestrator) reportProgress(done <-chan struct{}, job *JobSummary, start time.Time, onProgress func(Progress)) {
	if onProgress == nil {
		<-done
		return
	}

	interval := time.Duration(o.deps.Config.ProgressIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	emit := func() {
		onProgress(Progress{
			JobID:     job.ID,
			Chapter:   job.Chapter,
			Part:      job.Part,
			State:     StateRunning,
			ElapsedMS: o.deps.Now().Sub(start).Milliseconds(),
		})
	}

	emit()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			emit()
		}
	}
}

// finish moves through completed or failed back to idle and journals the job.
func (o *Orchestrator) finish(job *JobSummary, start time.Time, err error) {
	end := o.deps.Now()
	summary := *job
	summary.FinishedAt = end.UnixMilli()
	summary.ElapsedMS = end.Sub(start).Milliseconds()
	if err != nil {
		summary.State = StateFailed
		summary.ErrorCode = string(errors.CodeOf(err))
		summary.Message = err.Error()
		summary.OutputChars = 0
		o.deps.Log.Warn("generation failed", "job_id", job.ID, "error", err)
	} else {
		summary.State = StateCompleted
		summary.Message = fmt.Sprintf("part %d of chapter %d generated", job.Part, job.Chapter+1)
		o.deps.Log.Info("generation completed", "job_id", job.ID, "output_chars", summary.OutputChars, "elapsed_ms", summary.ElapsedMS)
	}

	o.mu.Lock()
	o.state = summary.State
	o.last = &summary
	o.mu.Unlock()

	o.journal(&summary)

	o.mu.Lock()
	o.state = StateIdle
	o.current = nil
	o.mu.Unlock()
	o.running.Store(false)
}

// generateULID generates a new ULID for a job started at t.
func generateULID(t time.Time) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// journal records the job. Failures are logged and otherwise ignored.
func (o *Orchestrator) journal(s *JobSummary) {
	if o.deps.Journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errText := ""
	if s.State == StateFailed {
		errText = s.Message
	}
	err := db.InsertJob(ctx, o.deps.Journal, &db.Job{
		ID:          s.ID,
		Chapter:     s.Chapter,
		Part:        s.Part,
		State:       string(s.State),
		PromptChars: s.PromptChars,
		OutputChars: s.OutputChars,
		Error:       errText,
		StartedAt:   s.StartedAt,
		FinishedAt:  s.FinishedAt,
		ElapsedMS:   s.ElapsedMS,
	})
	if err != nil {
		o.deps.Log.Warn("failed to journal job", "job_id", s.ID, "error", err)
	}
}

package ops

import (
	"context"
	"database/sql"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/loom/internal/config"
	"github.com/hpungsan/loom/internal/db"
	"github.com/hpungsan/loom/internal/draft"
	"github.com/hpungsan/loom/internal/errors"
	"github.com/hpungsan/loom/internal/llm"
	"github.com/hpungsan/loom/internal/logger"
	"github.com/hpungsan/loom/internal/outline"
)

type stubBackend struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	keys    []string
	reqs    []llm.Request

	text    string
	err     error
	block   chan struct{}
	started chan struct{}
}

func (s *stubBackend) Generate(ctx context.Context, apiKey string, req llm.Request) (string, error) {
	s.mu.Lock()
	s.calls++
	s.prompts = append(s.prompts, req.Prompt)
	s.keys = append(s.keys, apiKey)
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()

	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.text, s.err
}

func (s *stubBackend) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubBackend) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts[len(s.prompts)-1]
}

type harness struct {
	store   *draft.Store
	backend *stubBackend
	journal *sql.DB
	orch    *Orchestrator
}

func newHarness(t *testing.T, backend *stubBackend, keys []string) *harness {
	t.Helper()
	store := newTestStore(t, 5)
	journal, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	cfg := config.DefaultConfig()
	cfg.ProgressIntervalMS = 5

	orch := NewOrchestrator(OrchestratorDeps{
		Store:   store,
		Bundle:  &outline.Bundle{WritingRules: "RULES", CoreLore: "LORE", Characters: "CHARS", World: "WORLD"},
		Backend: backend,
		Keys:    llm.NewKeyPool(keys, nil),
		Config:  cfg,
		Journal: journal,
		Log:     logger.Nop(),
	})
	return &harness{store: store, backend: backend, journal: journal, orch: orch}
}

func TestGenerate_Success(t *testing.T) {
	h := newHarness(t, &stubBackend{text: "Chapter 2\n**The** rain fell."}, []string{"k1"})

	out, err := h.orch.Generate(context.Background(), GenerateInput{Chapter: 1, Part: 1})
	require.NoError(t, err)
	require.Equal(t, "The rain fell.", out.Text)
	require.True(t, out.Persisted)
	require.Empty(t, out.Warning)
	require.Equal(t, 14, out.Chars)
	require.NotEmpty(t, out.JobID)

	rec, err := h.store.Get(1)
	require.NoError(t, err)
	require.Equal(t, "The rain fell.", rec.Part1)

	data, err := os.ReadFile(h.store.Path())
	require.NoError(t, err)
	require.Contains(t, string(data), "The rain fell.")

	st := h.orch.Status()
	require.Equal(t, StateIdle, st.State)
	require.False(t, st.Running)
	require.Nil(t, st.Current)
	require.NotNil(t, st.LastJob)
	require.Equal(t, StateCompleted, st.LastJob.State)
	require.Equal(t, out.JobID, st.LastJob.ID)

	req := h.backend.reqs[0]
	require.Equal(t, "gemini-flash-latest", req.Model)
	require.Equal(t, 0.7, req.Temperature)
	require.Equal(t, 3500, req.MaxOutputTokens)
	require.Equal(t, "k1", h.backend.keys[0])

	jobs, err := db.ListJobs(context.Background(), h.journal, nil, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, out.JobID, jobs[0].ID)
	require.Equal(t, "completed", jobs[0].State)
	require.Equal(t, 14, jobs[0].OutputChars)
}

func TestGenerate_SingleFlight(t *testing.T) {
	backend := &stubBackend{
		text:    "prose",
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	h := newHarness(t, backend, []string{"k1"})

	type result struct {
		out *GenerateOutput
		err error
	}
	first := make(chan result, 1)
	go func() {
		out, err := h.orch.Generate(context.Background(), GenerateInput{Chapter: 0, Part: 1})
		first <- result{out, err}
	}()
	<-backend.started

	running := h.orch.Status()
	require.Equal(t, StateRunning, running.State)
	require.True(t, running.Running)
	require.NotNil(t, running.Current)

	_, err := h.orch.Generate(context.Background(), GenerateInput{Chapter: 2, Part: 2})
	require.True(t, errors.Is(err, errors.ErrBusy))
	require.Equal(t, 1, backend.callCount())

	again := h.orch.Status()
	require.Equal(t, running.Current.ID, again.Current.ID)
	require.Equal(t, 0, again.Current.Chapter)

	close(backend.block)
	res := <-first
	require.NoError(t, res.err)
	require.Equal(t, "prose", res.out.Text)

	rec, _ := h.store.Get(2)
	require.Empty(t, rec.Part2)
}

func TestGenerate_FailureIsolation(t *testing.T) {
	h := newHarness(t, &stubBackend{err: stderrors.New("quota exhausted")}, []string{"k1"})
	require.NoError(t, h.store.SetPart(3, 1, "first part"))
	require.NoError(t, h.store.SetPart(3, 3, "third part"))
	require.NoError(t, h.store.Persist())

	before, err := os.ReadFile(h.store.Path())
	require.NoError(t, err)
	recBefore, _ := h.store.Get(3)

	_, err = h.orch.Generate(context.Background(), GenerateInput{Chapter: 3, Part: 2})
	require.True(t, errors.Is(err, errors.ErrBackendFailure))
	require.Contains(t, err.Error(), "quota exhausted")

	after, err := os.ReadFile(h.store.Path())
	require.NoError(t, err)
	require.Equal(t, string(before), string(after))

	recAfter, _ := h.store.Get(3)
	require.Equal(t, recBefore, recAfter)

	st := h.orch.Status()
	require.Equal(t, StateIdle, st.State)
	require.Equal(t, StateFailed, st.LastJob.State)
	require.Equal(t, string(errors.ErrBackendFailure), st.LastJob.ErrorCode)
	require.Contains(t, st.LastJob.Message, "quota exhausted")

	jobs, err := db.ListJobs(context.Background(), h.journal, nil, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "failed", jobs[0].State)
	require.Contains(t, jobs[0].Error, "quota exhausted")
}

func TestGenerate_EmptyAfterSanitizeFails(t *testing.T) {
	h := newHarness(t, &stubBackend{text: "Chapter 3\n**\n# Title"}, []string{"k1"})

	_, err := h.orch.Generate(context.Background(), GenerateInput{Chapter: 0, Part: 1})
	require.True(t, errors.Is(err, errors.ErrBackendFailure))

	rec, _ := h.store.Get(0)
	require.Empty(t, rec.Part1)
}

func TestGenerate_MissingCredentials(t *testing.T) {
	backend := &stubBackend{text: "never"}
	h := newHarness(t, backend, nil)

	_, err := h.orch.Generate(context.Background(), GenerateInput{Chapter: 0, Part: 1})
	require.True(t, errors.Is(err, errors.ErrConfigurationMissing))
	require.Equal(t, 0, backend.callCount())
	require.Equal(t, StateFailed, h.orch.Status().LastJob.State)
}

func TestGenerate_Validation(t *testing.T) {
	backend := &stubBackend{text: "x"}
	h := newHarness(t, backend, []string{"k1"})

	_, err := h.orch.Generate(context.Background(), GenerateInput{Chapter: 0, Part: 0})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = h.orch.Generate(context.Background(), GenerateInput{Chapter: 5, Part: 1})
	require.True(t, errors.Is(err, errors.ErrIndexOutOfRange))

	st := h.orch.Status()
	require.Equal(t, StateIdle, st.State)
	require.Nil(t, st.LastJob)
	require.Equal(t, 0, backend.callCount())
}

func TestGenerate_ContinuationChaining(t *testing.T) {
	backend := &stubBackend{text: "part three"}
	h := newHarness(t, backend, []string{"k1"})

	part2 := strings.Repeat("ก", 500) + strings.Repeat("b", 2500)
	require.NoError(t, h.store.SetPart(0, 2, part2))

	_, err := h.orch.Generate(context.Background(), GenerateInput{Chapter: 0, Part: 3})
	require.NoError(t, err)

	prompt := backend.lastPrompt()
	require.Contains(t, prompt, "PREVIOUS CONTEXT: CONTINUE FROM PART 2: "+strings.Repeat("b", 2500)+"\n")
	require.NotContains(t, prompt, "ก")
	require.Contains(t, prompt, "PART 3/3")
}

func TestGenerate_ProgressEmitted(t *testing.T) {
	backend := &stubBackend{
		text:    "prose",
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	h := newHarness(t, backend, []string{"k1"})

	var mu sync.Mutex
	var events []Progress
	onProgress := func(p Progress) {
		mu.Lock()
		events = append(events, p)
		mu.Unlock()
	}

	done := make(chan *GenerateOutput, 1)
	go func() {
		out, _ := h.orch.Generate(context.Background(), GenerateInput{Chapter: 4, Part: 1, OnProgress: onProgress})
		done <- out
	}()
	<-backend.started
	time.Sleep(30 * time.Millisecond)
	close(backend.block)
	out := <-done
	require.NotNil(t, out)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(events), 2)
	for i, ev := range events {
		require.Equal(t, out.JobID, ev.JobID)
		require.Equal(t, 4, ev.Chapter)
		require.Equal(t, StateRunning, ev.State)
		if i > 0 {
			require.GreaterOrEqual(t, ev.ElapsedMS, events[i-1].ElapsedMS)
		}
	}

	// No events after the job finished.
	n := len(events)
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	require.Equal(t, n, len(events))
}

func TestGenerate_PersistFailureStillCompletes(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))
	store, err := draft.Open(filepath.Join(blocker, "story_db.json"), testChapters{}, 2, logger.Nop())
	require.True(t, errors.Is(err, errors.ErrPersistenceFailure))

	orch := NewOrchestrator(OrchestratorDeps{
		Store:   store,
		Backend: &stubBackend{text: "kept in memory"},
		Keys:    llm.NewKeyPool([]string{"k"}, nil),
	})

	out, err := orch.Generate(context.Background(), GenerateInput{Chapter: 1, Part: 2})
	require.NoError(t, err)
	require.False(t, out.Persisted)
	require.Contains(t, out.Warning, "PERSISTENCE_FAILURE")

	rec, _ := store.Get(1)
	require.Equal(t, "kept in memory", rec.Part2)
	require.Equal(t, StateCompleted, orch.Status().LastJob.State)
}

func TestGenerate_JournalFailureIgnored(t *testing.T) {
	h := newHarness(t, &stubBackend{text: "ok"}, []string{"k1"})
	h.journal.Close()

	out, err := h.orch.Generate(context.Background(), GenerateInput{Chapter: 0, Part: 1})
	require.NoError(t, err)
	require.True(t, out.Persisted)
}

func TestGenerate_RotatesCredentials(t *testing.T) {
	backend := &stubBackend{text: "ok"}
	h := newHarness(t, backend, []string{"k1", "k2"})

	for i := 0; i < 3; i++ {
		_, err := h.orch.Generate(context.Background(), GenerateInput{Chapter: 0, Part: 1})
		require.NoError(t, err)
	}
	require.Equal(t, []string{"k1", "k2", "k1"}, backend.keys)
}

func TestGenerate_ContextCancelled(t *testing.T) {
	backend := &stubBackend{
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	h := newHarness(t, backend, []string{"k1"})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := h.orch.Generate(ctx, GenerateInput{Chapter: 0, Part: 1})
		errc <- err
	}()
	<-backend.started
	cancel()

	err := <-errc
	require.True(t, errors.Is(err, errors.ErrCancelled))
	require.False(t, h.orch.Status().Running)
}

func TestGenerate_RequestTimeoutIsCancelled(t *testing.T) {
	backend := &stubBackend{block: make(chan struct{})}
	h := newHarness(t, backend, []string{"k1"})
	h.orch.deps.Config.RequestTimeoutSeconds = 1

	_, err := h.orch.Generate(context.Background(), GenerateInput{Chapter: 0, Part: 1})
	require.True(t, errors.Is(err, errors.ErrCancelled), "got %v", err)

	st := h.orch.Status()
	require.NotNil(t, st.LastJob)
	require.Equal(t, StateFailed, st.LastJob.State)
	require.Equal(t, string(errors.ErrCancelled), st.LastJob.ErrorCode)

	rec, err := h.store.Get(0)
	require.NoError(t, err)
	require.Empty(t, rec.Part1)
}

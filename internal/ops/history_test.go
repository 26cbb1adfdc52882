package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/loom/internal/errors"
)

func TestHistory_NoJournal(t *testing.T) {
	_, err := History(context.Background(), nil, HistoryInput{})
	require.True(t, errors.Is(err, errors.ErrConfigurationMissing))
}

func TestHistory_ListsJobs(t *testing.T) {
	backend := &stubBackend{text: "ok"}
	h := newHarness(t, backend, []string{"k1"})
	ctx := context.Background()

	_, err := h.orch.Generate(ctx, GenerateInput{Chapter: 0, Part: 1})
	require.NoError(t, err)
	_, err = h.orch.Generate(ctx, GenerateInput{Chapter: 2, Part: 1})
	require.NoError(t, err)

	out, err := History(ctx, h.journal, HistoryInput{})
	require.NoError(t, err)
	require.Equal(t, DefaultHistoryLimit, out.Limit)
	require.Len(t, out.Items, 2)

	chapter := 2
	out, err = History(ctx, h.journal, HistoryInput{Chapter: &chapter, Limit: 500})
	require.NoError(t, err)
	require.Equal(t, MaxHistoryLimit, out.Limit)
	require.Len(t, out.Items, 1)
	require.Equal(t, 2, out.Items[0].Chapter)

	negative := -1
	_, err = History(ctx, h.journal, HistoryInput{Chapter: &negative})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

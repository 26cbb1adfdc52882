package draft

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/loom/internal/errors"
)

func TestRecord_UnmarshalCurrentKeys(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"part1":"a","part2":"b","part3":"c","title":"T","context":"C"}`), &r))
	require.Equal(t, Record{Part1: "a", Part2: "b", Part3: "c", Title: "T", Context: "C"}, r)
}

func TestRecord_UnmarshalLegacyKeys(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"p1":"a","p2":"b","p3":"","t":"ตอนที่ 1","ctx":"Event: x"}`), &r))
	require.Equal(t, Record{Part1: "a", Part2: "b", Title: "ตอนที่ 1", Context: "Event: x"}, r)
}

func TestRecord_CurrentKeysWin(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"p1":"old","part1":"new"}`), &r))
	require.Equal(t, "new", r.Part1)
}

func TestRecord_MarshalUsesCurrentKeys(t *testing.T) {
	data, err := json.Marshal(Record{Part1: "x"})
	require.NoError(t, err)
	require.JSONEq(t, `{"part1":"x","part2":"","part3":"","title":"","context":""}`, string(data))
}

func TestRecord_PartAccessors(t *testing.T) {
	r := Record{Part1: "one", Part2: "two", Part3: "three"}
	for p, want := range map[int]string{1: "one", 2: "two", 3: "three"} {
		got, err := r.Part(p)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := r.Part(4)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	r2, err := r.WithPart(2, "TWO")
	require.NoError(t, err)
	require.Equal(t, "TWO", r2.Part2)
	require.Equal(t, "two", r.Part2)

	_, err = r.WithPart(0, "x")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	require.True(t, Record{Title: "t"}.Empty())
	require.False(t, r.Empty())
}

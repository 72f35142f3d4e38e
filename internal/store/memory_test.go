package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"famcal/internal/model"
)

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ev, err := s.CreateEvent(ctx, weeklyEvent("Swim"))
	require.NoError(t, err)
	ev.MemberIDs[0] = "mutated"
	ev.Schedule.(model.WeeklyRule).DaysOfWeek[0] = 7

	got, err := s.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"sunwoo"}, got.MemberIDs)
	assert.Equal(t, []int{1, 3}, got.Schedule.(model.WeeklyRule).DaysOfWeek)

	events, _, err := s.Snapshot(ctx)
	require.NoError(t, err)
	events[0].Title = "changed"
	again, err := s.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Swim", again.Title)
}

func TestMemoryStorePersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "famcal.json")

	s, err := OpenMemoryStore(path)
	require.NoError(t, err)
	assert.False(t, s.Dirty())

	ev, err := s.CreateEvent(ctx, weeklyEvent("Piano"))
	require.NoError(t, err)
	_, err = s.CreateEvent(ctx, singleEvent("Dentist"))
	require.NoError(t, err)
	_, err = s.CreateException(ctx, model.Exception{EventID: ev.ID, Date: model.MustDate("2024-06-10"), Kind: model.ExceptionCancel})
	require.NoError(t, err)
	assert.True(t, s.Dirty())

	require.NoError(t, s.Close())
	assert.False(t, s.Dirty())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	var raw map[string]any
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, 1, raw["version"])

	reopened, err := OpenMemoryStore(path)
	require.NoError(t, err)
	events, exceptions, err := reopened.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Piano", events[0].Title)
	assert.Equal(t, ev.Schedule, events[0].Schedule)
	assert.Equal(t, "bring card", *events[1].Note)
	require.Len(t, exceptions, 1)
	assert.Equal(t, "2024-06-10", exceptions[0].Date.String())
}

func TestMemoryStoreFlushWithoutPath(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.CreateEvent(context.Background(), singleEvent("x"))
	require.NoError(t, err)
	assert.NoError(t, s.Flush())
}

func TestOpenMemoryStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "famcal.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := OpenMemoryStore(path)
	assert.Error(t, err)
}

type countingFlusher struct{ n chan struct{} }

func (c *countingFlusher) Flush() error {
	select {
	case c.n <- struct{}{}:
	default:
	}
	return nil
}

func TestStartFlusherRejectsBadSpec(t *testing.T) {
	_, err := StartFlusher("not a cron", &countingFlusher{n: make(chan struct{}, 1)})
	assert.Error(t, err)

	c, err := StartFlusher("*/5 * * * *", &countingFlusher{n: make(chan struct{}, 1)})
	require.NoError(t, err)
	require.Len(t, c.Entries(), 1)
	<-c.Stop().Done()
}

package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"famcal/internal/model"
)

func weeklyEvent(title string) model.Event {
	end := model.MustDate("2024-06-30")
	return model.Event{
		Title:      title,
		CategoryID: "academy",
		MemberIDs:  []string{"sunwoo"},
		StartTime:  "16:00",
		EndTime:    "17:00",
		Schedule:   model.WeeklyRule{DaysOfWeek: []int{1, 3}, StartDate: model.MustDate("2024-06-01"), EndDate: &end},
	}
}

func singleEvent(title string) model.Event {
	note := "bring card"
	return model.Event{
		Title:      title,
		CategoryID: "family",
		MemberIDs:  []string{"jaeho", "sooyoung"},
		StartTime:  "10:00",
		EndTime:    "11:00",
		Schedule:   model.SingleDate{Date: model.MustDate("2024-06-12")},
		Note:       &note,
	}
}

// runStoreContract exercises behavior every Store implementation must share.
// s must be empty.
func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("create assigns ids and timestamps", func(t *testing.T) {
		ev, err := s.CreateEvent(ctx, weeklyEvent("Math"))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(ev.ID, "evt-"), ev.ID)
		assert.False(t, ev.CreatedAt.IsZero())
		assert.Equal(t, ev.CreatedAt, ev.UpdatedAt)

		got, err := s.GetEvent(ctx, ev.ID)
		require.NoError(t, err)
		assert.Equal(t, ev.Title, got.Title)
		assert.Equal(t, ev.Schedule, got.Schedule)
		assert.Equal(t, ev.MemberIDs, got.MemberIDs)
		require.NoError(t, s.DeleteEvent(ctx, ev.ID))
	})

	t.Run("get and delete unknown", func(t *testing.T) {
		_, err := s.GetEvent(ctx, "evt-missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteEvent(ctx, "evt-missing"), ErrNotFound)
		_, err = s.UpdateEvent(ctx, model.Event{ID: "evt-missing", Schedule: model.SingleDate{Date: model.MustDate("2024-01-01")}})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update keeps created at", func(t *testing.T) {
		ev, err := s.CreateEvent(ctx, singleEvent("Dentist"))
		require.NoError(t, err)

		ev.Title = "Orthodontist"
		ev.Schedule = model.WeeklyRule{DaysOfWeek: []int{5}, StartDate: model.MustDate("2024-06-01")}
		ev.Note = nil
		updated, err := s.UpdateEvent(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, ev.CreatedAt, updated.CreatedAt)
		assert.False(t, updated.UpdatedAt.Before(ev.CreatedAt))

		got, err := s.GetEvent(ctx, ev.ID)
		require.NoError(t, err)
		assert.Equal(t, "Orthodontist", got.Title)
		assert.True(t, got.IsRecurring())
		assert.Nil(t, got.Note)
		require.NoError(t, s.DeleteEvent(ctx, ev.ID))
	})

	t.Run("exceptions are unique per date and cascade", func(t *testing.T) {
		a, err := s.CreateEvent(ctx, weeklyEvent("A"))
		require.NoError(t, err)
		b, err := s.CreateEvent(ctx, weeklyEvent("B"))
		require.NoError(t, err)

		title := "Makeup class"
		x1, err := s.CreateException(ctx, model.Exception{
			EventID: a.ID, Date: model.MustDate("2024-06-03"), Kind: model.ExceptionModify,
			ModifiedFields: &model.ModifiedFields{Title: &title},
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(x1.ID, "exc-"), x1.ID)

		_, err = s.CreateException(ctx, model.Exception{EventID: a.ID, Date: model.MustDate("2024-06-03"), Kind: model.ExceptionCancel})
		assert.ErrorIs(t, err, ErrDuplicateException)

		// Same date on another event is fine.
		_, err = s.CreateException(ctx, model.Exception{EventID: b.ID, Date: model.MustDate("2024-06-03"), Kind: model.ExceptionCancel})
		require.NoError(t, err)

		_, err = s.CreateException(ctx, model.Exception{EventID: "evt-missing", Date: model.MustDate("2024-06-03"), Kind: model.ExceptionCancel})
		assert.ErrorIs(t, err, ErrNotFound)

		forA, err := s.ListExceptions(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, forA, 1)
		assert.Equal(t, "Makeup class", *forA[0].ModifiedFields.Title)
		assert.Nil(t, forA[0].ModifiedFields.StartTime)

		all, err := s.ListExceptions(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)

		require.NoError(t, s.DeleteEvent(ctx, a.ID))
		all, err = s.ListExceptions(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, b.ID, all[0].EventID)

		assert.ErrorIs(t, s.DeleteException(ctx, a.ID, all[0].ID), ErrNotFound)
		require.NoError(t, s.DeleteException(ctx, b.ID, all[0].ID))
		assert.ErrorIs(t, s.DeleteException(ctx, b.ID, all[0].ID), ErrNotFound)
		require.NoError(t, s.DeleteEvent(ctx, b.ID))
	})

	t.Run("snapshot and list order", func(t *testing.T) {
		first, err := s.CreateEvent(ctx, weeklyEvent("first"))
		require.NoError(t, err)
		second, err := s.CreateEvent(ctx, singleEvent("second"))
		require.NoError(t, err)
		_, err = s.CreateException(ctx, model.Exception{EventID: first.ID, Date: model.MustDate("2024-06-05"), Kind: model.ExceptionCancel})
		require.NoError(t, err)

		list, err := s.ListEvents(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, []string{first.ID, second.ID}, []string{list[0].ID, list[1].ID})

		events, exceptions, err := s.Snapshot(ctx)
		require.NoError(t, err)
		assert.Len(t, events, 2)
		require.Len(t, exceptions, 1)
		assert.Equal(t, first.ID, exceptions[0].EventID)

		require.NoError(t, s.DeleteEvent(ctx, first.ID))
		require.NoError(t, s.DeleteEvent(ctx, second.ID))
	})
}

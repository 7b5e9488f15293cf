package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/stockbook/internal/model"
)

type stubPrefs struct {
	pref *model.NotificationPreference
	err  error
}

func (s stubPrefs) Get(context.Context, string) (*model.NotificationPreference, error) {
	return s.pref, s.err
}

func TestEnabledOffsets(t *testing.T) {
	all := model.DefaultPreference("u")

	t.Run("all enabled", func(t *testing.T) {
		assert.Equal(t, model.AllOffsets, EnabledOffsets(all))
	})

	t.Run("master switch off suppresses everything", func(t *testing.T) {
		p := all
		p.Enabled = false
		assert.Empty(t, EnabledOffsets(p))
	})

	t.Run("financial switch off suppresses everything", func(t *testing.T) {
		p := all
		p.FinancialEnabled = false
		assert.Empty(t, EnabledOffsets(p))
	})

	t.Run("individual switches", func(t *testing.T) {
		p := all
		p.Days7 = false
		p.Overdue = false
		assert.Equal(t, []model.Offset{model.Offset3Days, model.Offset1Day, model.OffsetDay}, EnabledOffsets(p))
	})
}

func TestResolver(t *testing.T) {
	ctx := context.Background()

	t.Run("missing row defaults to all offsets", func(t *testing.T) {
		r := NewResolver(stubPrefs{}, time.UTC)
		res, err := r.Resolve(ctx, "u")
		require.NoError(t, err)
		assert.Equal(t, model.AllOffsets, res.Offsets)
		assert.Equal(t, time.UTC, res.Location)
	})

	t.Run("lookup failure is typed", func(t *testing.T) {
		cause := errors.New("connection refused")
		r := NewResolver(stubPrefs{err: cause}, time.UTC)
		_, err := r.Resolve(ctx, "u")

		var lookupErr *PreferenceLookupError
		require.ErrorAs(t, err, &lookupErr)
		assert.Equal(t, "u", lookupErr.UserID)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("user timezone wins over default", func(t *testing.T) {
		p := model.DefaultPreference("u")
		p.Timezone = "Europe/Berlin"
		r := NewResolver(stubPrefs{pref: &p}, time.UTC)
		res, err := r.Resolve(ctx, "u")
		require.NoError(t, err)
		assert.Equal(t, "Europe/Berlin", res.Location.String())
	})

	t.Run("unknown timezone falls back to default", func(t *testing.T) {
		p := model.DefaultPreference("u")
		p.Timezone = "Mars/Olympus_Mons"
		r := NewResolver(stubPrefs{pref: &p}, time.UTC)
		res, err := r.Resolve(ctx, "u")
		require.NoError(t, err)
		assert.Equal(t, time.UTC, res.Location)
	})
}

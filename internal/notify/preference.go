package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/stockbook/internal/model"
)

// PreferenceReader loads a user's stored preference row. A nil row with a
// nil error means the user never saved preferences.
type PreferenceReader interface {
	Get(ctx context.Context, userID string) (*model.NotificationPreference, error)
}

// PreferenceLookupError means the preference store could not be read. The
// engine treats the user as having no offsets enabled for that run.
type PreferenceLookupError struct {
	UserID string
	Err    error
}

func (e *PreferenceLookupError) Error() string {
	return fmt.Sprintf("preference lookup for user %s: %v", e.UserID, e.Err)
}

func (e *PreferenceLookupError) Unwrap() error { return e.Err }

// Resolution is the outcome of resolving a user's preferences.
type Resolution struct {
	Offsets  []model.Offset
	Location *time.Location
}

// Resolver turns preference rows into enabled offsets.
type Resolver struct {
	prefs       PreferenceReader
	defaultZone *time.Location
}

func NewResolver(prefs PreferenceReader, defaultZone *time.Location) *Resolver {
	if defaultZone == nil {
		defaultZone = time.Local
	}
	return &Resolver{prefs: prefs, defaultZone: defaultZone}
}

// Resolve returns the user's enabled offsets in evaluation order. A user
// without a stored row gets every offset.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Resolution, error) {
	pref, err := r.prefs.Get(ctx, userID)
	if err != nil {
		return Resolution{Location: r.defaultZone}, &PreferenceLookupError{UserID: userID, Err: err}
	}
	if pref == nil {
		d := model.DefaultPreference(userID)
		pref = &d
	}
	return Resolution{
		Offsets:  EnabledOffsets(*pref),
		Location: r.location(pref.Timezone),
	}, nil
}

func (r *Resolver) location(name string) *time.Location {
	if name == "" {
		return r.defaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return r.defaultZone
	}
	return loc
}

// EnabledOffsets applies the master and financial switches before the
// per-offset switches.
func EnabledOffsets(p model.NotificationPreference) []model.Offset {
	if !p.Enabled || !p.FinancialEnabled {
		return nil
	}
	var offsets []model.Offset
	for _, o := range model.AllOffsets {
		if p.OffsetEnabled(o) {
			offsets = append(offsets, o)
		}
	}
	return offsets
}

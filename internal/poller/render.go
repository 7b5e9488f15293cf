package poller

import (
	"fmt"
	"io"
	"sync"

	"github.com/dukerupert/stockbook/internal/model"
)

// TextRenderer writes one line per notification.
type TextRenderer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

func (r *TextRenderer) Render(c model.Candidate) error {
	when := fmt.Sprintf("in %d days", c.DayOffset)
	switch {
	case c.IsOverdue:
		when = fmt.Sprintf("overdue by %d days", -c.DayOffset)
	case c.DayOffset == 0:
		when = "today"
	case c.DayOffset == 1:
		when = "tomorrow"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := fmt.Fprintf(r.w, "[%s] %s %s %s due %s (%s)\n",
		c.NotificationType, c.Kind, c.Amount.StringFixed(2), c.Description, when, c.ScheduledDate)
	return err
}

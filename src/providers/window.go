package providers

import (
	"time"

	"github.com/financeflow/backend/src/models"
)

// Window is the inclusive date range fetched on each sync.
type Window struct {
	Start time.Time
	End   time.Time
}

// TrailingWindow returns the window of the given number of days ending at now.
func TrailingWindow(now time.Time, days int) Window {
	if days <= 0 {
		days = 30
	}
	return Window{Start: now.AddDate(0, 0, -days), End: now}
}

// StartDate and EndDate format the bounds as YYYY-MM-DD.
func (w Window) StartDate() string { return w.Start.Format(models.DateLayout) }
func (w Window) EndDate() string   { return w.End.Format(models.DateLayout) }

// Contains reports whether t falls on a day inside the window.
func (w Window) Contains(t time.Time) bool {
	d := t.Format(models.DateLayout)
	return d >= w.StartDate() && d <= w.EndDate()
}

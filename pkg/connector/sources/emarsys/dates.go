package emarsys

import (
	"time"

	"github.com/ajitpratap0/emarsys-tap/pkg/config"
	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
)

// resolveDate parses a configured or checkpointed date. Empty means the
// current day according to now.
func resolveDate(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return civilDay(now), nil
	}
	t, err := config.ParseDate(value)
	if err != nil {
		return time.Time{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid date")
	}
	return t, nil
}

// civilDay truncates t to midnight UTC of its UTC date
func civilDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func formatDate(t time.Time) string {
	return t.Format(config.DateLayout)
}

func nextDay(t time.Time) time.Time {
	return t.AddDate(0, 0, 1)
}

func laterDate(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

package fx

import (
	"errors"
	"fmt"
	"time"
)

// ErrTranslationUnavailable signals that no usable rate exists for a currency pair.
var ErrTranslationUnavailable = errors.New("fx: translation unavailable")

// MissingRateError describes the pair and date that could not be translated.
type MissingRateError struct {
	From string
	To   string
	Date time.Time
}

func (e *MissingRateError) Error() string {
	return fmt.Sprintf("fx: no rate %s->%s on %s", e.From, e.To, e.Date.Format("2006-01-02"))
}

// Unwrap lets callers match the failure with errors.Is(err, ErrTranslationUnavailable).
func (e *MissingRateError) Unwrap() error {
	return ErrTranslationUnavailable
}

package domain

import "errors"

// ErrNoReadings is returned when a meter has no persisted readings yet.
// Not an error condition for subscribers: the initial snapshot is simply
// omitted.
var ErrNoReadings = errors.New("no readings for meter")

package scheduling

import "time"

// Clock supplies the current time to the service so that tests and
// callers control "now" explicitly instead of reading the system clock
// deep inside the engine.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }

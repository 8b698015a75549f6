package gwatchdog

import (
	"errors"
	"fmt"
	"time"
)

// ErrStopped is returned by requests made after the watchdog's kernel has exited.
var ErrStopped = errors.New("watchdog stopped")

// InvalidThresholdError describes a rejected hang timeout.
type InvalidThresholdError struct {
	Timeout time.Duration
	Reason  string
}

func (e InvalidThresholdError) Error() string {
	return fmt.Sprintf(
		"invalid hang timeout %s (%s); must be in [%s, %s] in steps of %s",
		e.Timeout, e.Reason, MinTimeout, MaxTimeout, TimeoutStep,
	)
}

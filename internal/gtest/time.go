package gtest

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const timeFactorEnv = "GSTALL_TEST_TIME_FACTOR"

// TimeFactor stretches every [ScaledDuration].
// It is read from GSTALL_TEST_TIME_FACTOR, which may be fractional (e.g. 2.5).
//
// Watchdog tests wait on real sampling timers,
// so a machine under load may need longer bounds than a workstation.
var TimeFactor = 1.0

func init() {
	f, err := ParseTimeFactor(os.Getenv(timeFactorEnv))
	if err != nil {
		panic(err)
	}
	TimeFactor = f
}

// ParseTimeFactor parses a time factor setting.
// The empty string means 1.
func ParseTimeFactor(s string) (float64, error) {
	if s == "" {
		return 1, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s (%q): %w", timeFactorEnv, s, err)
	}
	if f < 1 {
		return 0, fmt.Errorf("%s must be at least 1; got %g", timeFactorEnv, f)
	}
	return f, nil
}

type ScaledDuration time.Duration

// ScaleMs returns ms milliseconds stretched by [TimeFactor].
func ScaleMs(ms int64) ScaledDuration {
	return ScaledDuration(float64(ms) * TimeFactor * float64(time.Millisecond))
}

func (d ScaledDuration) Duration() time.Duration {
	return time.Duration(d)
}

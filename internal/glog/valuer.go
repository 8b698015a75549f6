package glog

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// HexAddrs renders a list of code addresses as space-separated hex values.
// Without this, slog prints the decimal slice form, which is useless when matching symbols.
type HexAddrs []uint64

func (v HexAddrs) LogValue() slog.Value {
	var b strings.Builder
	for i, a := range v {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("0x")
		b.WriteString(strconv.FormatUint(a, 16))
	}
	return slog.StringValue(b.String())
}

// Ms renders a duration as integer milliseconds,
// matching the resolution of watchdog thresholds.
type Ms time.Duration

func (v Ms) LogValue() slog.Value {
	return slog.Int64Value(time.Duration(v).Milliseconds())
}

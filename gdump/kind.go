package gdump

import (
	"fmt"
)

// Kind classifies a report.
// The numeric values are stable report codes.
type Kind int

const (
	KindUnlag                     Kind = 2000
	KindMainThreadBlock           Kind = 2001
	KindBackgroundMainThreadBlock Kind = 2002
	KindCPUBlock                  Kind = 2003
	KindSelfDefined               Kind = 2005
	KindLaunchBlock               Kind = 2007
	KindBlockThreadTooMuch        Kind = 2009
	KindBlockAndBeKilled          Kind = 2010
	KindPowerConsume              Kind = 2011
)

var kindNames = map[Kind]string{
	KindUnlag:                     "unlag",
	KindMainThreadBlock:           "main_thread_block",
	KindBackgroundMainThreadBlock: "background_main_thread_block",
	KindCPUBlock:                  "cpu_block",
	KindSelfDefined:               "self_defined",
	KindLaunchBlock:               "launch_block",
	KindBlockThreadTooMuch:        "block_thread_too_much",
	KindBlockAndBeKilled:          "block_and_be_killed",
	KindPowerConsume:              "power_consume",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of [Kind.String].
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown report kind %q", s)
}

// IsLaunch reports whether reports of kind k are tracked in the launch side file.
func (k Kind) IsLaunch() bool {
	return k == KindLaunchBlock
}

// IsStall reports whether k describes a stalled loop,
// as opposed to an auxiliary or synthetic report.
func (k Kind) IsStall() bool {
	switch k {
	case KindMainThreadBlock, KindBackgroundMainThreadBlock,
		KindLaunchBlock, KindBlockThreadTooMuch:
		return true
	default:
		return false
	}
}

package gdump

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gordian-engine/gstall/gstack"
	"github.com/gordian-engine/gstall/gstack/gstackagg"
)

// Payload is everything handed to a [Writer] for one report.
// The stacks it references are owned by the payload until WriteReport returns.
type Payload struct {
	ID   uuid.UUID
	Kind Kind
	Time time.Time

	// How long the loop had been stalled, and the threshold it exceeded.
	Blocked   time.Duration
	Threshold time.Duration

	Point gstackagg.PointStack

	// Stacks captured from other threads during the final capture.
	Threads map[gstack.ThreadID]gstack.Stack

	// Call tree of every sample in the cycle, or the CPU-weighted tree
	// for power-consumption reports. May be nil.
	Profile *gstack.Tree

	CustomInfo map[string]string

	// Free-form explanation, e.g. the reason a live report was requested.
	Detail string
}

// NewPayload returns a payload with a fresh ID.
func NewPayload(k Kind, now time.Time) Payload {
	return Payload{
		ID:   uuid.New(),
		Kind: k,
		Time: now,
	}
}

// Report is the serialized form of a [Payload].
type Report struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Code        int       `json:"code"`
	Time        time.Time `json:"time"`
	BlockedMs   int64     `json:"blocked_ms"`
	ThresholdMs int64     `json:"threshold_ms"`

	PointStack   []uint64 `json:"point_stack,omitempty"`
	Repeat       int      `json:"repeat,omitempty"`
	FrameRepeats []int    `json:"frame_repeats,omitempty"`

	Threads map[string][]uint64 `json:"threads,omitempty"`
	Profile []ProfileNode       `json:"profile,omitempty"`

	CustomInfo map[string]string `json:"custom_info,omitempty"`
	Detail     string            `json:"detail,omitempty"`
}

type ProfileNode struct {
	Addr     uint64        `json:"addr"`
	Weight   int           `json:"weight"`
	Children []ProfileNode `json:"children,omitempty"`
}

// Report converts p to its serialized form.
func (p Payload) Report() Report {
	r := Report{
		ID:          p.ID.String(),
		Kind:        p.Kind.String(),
		Code:        int(p.Kind),
		Time:        p.Time,
		BlockedMs:   p.Blocked.Milliseconds(),
		ThresholdMs: p.Threshold.Milliseconds(),

		Repeat:       p.Point.Repeat,
		FrameRepeats: p.Point.FrameRepeats,

		CustomInfo: p.CustomInfo,
		Detail:     p.Detail,
	}
	if !p.Point.Empty() {
		r.PointStack = p.Point.Stack.Uint64s()
	}
	if len(p.Threads) > 0 {
		r.Threads = make(map[string][]uint64, len(p.Threads))
		for id, st := range p.Threads {
			r.Threads[strconv.FormatUint(uint64(id), 10)] = st.Uint64s()
		}
	}
	if p.Profile != nil {
		r.Profile = profileNodes(p.Profile.Roots)
	}
	return r
}

func profileNodes(nodes []*gstack.Node) []ProfileNode {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]ProfileNode, len(nodes))
	for i, n := range nodes {
		out[i] = ProfileNode{
			Addr:     uint64(n.Addr),
			Weight:   n.Weight,
			Children: profileNodes(n.Children),
		}
	}
	return out
}

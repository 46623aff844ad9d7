package context

const (
	DefaultCeiling = 60
	DefaultFloor   = 20
)

// SliceBuilder keeps the system message plus the most recent non-system
// messages, up to a limit that callers shrink on context-length failures.
type SliceBuilder struct {
	Ceiling int
	Floor   int
}

// NewSliceBuilder normalizes ceiling and floor: non-positive values fall back
// to the defaults and a floor above the ceiling is clamped to it.
func NewSliceBuilder(ceiling, floor int) *SliceBuilder {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if floor <= 0 {
		floor = DefaultFloor
	}
	if floor > ceiling {
		floor = ceiling
	}
	return &SliceBuilder{Ceiling: ceiling, Floor: floor}
}

// Build returns [transcript[0]] + the last limit non-system messages of
// transcript[1:]. The result never aliases the transcript.
func (b *SliceBuilder) Build(transcript []Message, limit int) []Message {
	if len(transcript) == 0 {
		return nil
	}
	if limit < 0 {
		limit = 0
	}

	tail := make([]Message, 0, len(transcript)-1)
	for _, m := range transcript[1:] {
		if m.Role == RoleSystem {
			continue
		}
		tail = append(tail, m)
	}
	if len(tail) > limit {
		tail = tail[len(tail)-limit:]
	}

	out := make([]Message, 0, 1+len(tail))
	out = append(out, transcript[0])
	out = append(out, tail...)
	return out
}

// Shrink halves limit, never going below the floor.
func (b *SliceBuilder) Shrink(limit int) int {
	next := limit / 2
	if next < b.Floor {
		return b.Floor
	}
	return next
}

// AtFloor reports whether limit can no longer shrink.
func (b *SliceBuilder) AtFloor(limit int) bool {
	return limit <= b.Floor
}

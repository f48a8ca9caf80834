package labels

import (
	"math"

	"github.com/pkg/errors"
)

// Condition is the label of one time index
type Condition int8

// Conditions. Unknown marks time indices no event covers.
const (
	Unknown   Condition = -1
	NonSpeech Condition = 0
	Speech    Condition = 1
)

// Segment identifies one of the two movie segments
type Segment int

// Segments
const (
	First Segment = iota
	Second
)

func (s Segment) String() string {
	if s == First {
		return "first_segment"
	}
	return "second_segment"
}

// ErrNoEvents is returned when no event has a usable end time
var ErrNoEvents = errors.New("no timed events")

// Event is one row of the event log
type Event struct {
	Speaker  string
	Speaking bool
	Start    float64 // seconds
	End      float64 // seconds
}

// Params controls sample selection. Separation, Buffer and LagShift are in
// TRs; Boundary is the first time index of the second segment.
type Params struct {
	TRDuration float64
	Separation int
	Buffer     int
	LagShift   int
	Boundary   int
}

// Samples holds the time indices chosen in one segment
type Samples struct {
	Raw     []int
	Shifted []int
	Labels  []Condition
}

// Result is the output of Derive
type Result struct {
	Conditions []Condition
	Segments   [2]Samples
}

// Discretize stamps each event's condition over the TRs it covers. The label
// array spans int(max end / TR) indices; later events overwrite earlier ones.
func Discretize(events []Event, tr float64) ([]Condition, error) {
	maxEnd := math.Inf(-1)
	for _, ev := range events {
		if !math.IsNaN(ev.End) && ev.End > maxEnd {
			maxEnd = ev.End
		}
	}
	if math.IsInf(maxEnd, -1) {
		return nil, ErrNoEvents
	}
	if maxEnd < 0 {
		return []Condition{}, nil
	}

	n := int(maxEnd / tr)
	conditions := make([]Condition, n)
	for i := range conditions {
		conditions[i] = Unknown
	}

	for _, ev := range events {
		if math.IsNaN(ev.Start) || math.IsNaN(ev.End) {
			continue
		}

		cond := NonSpeech
		if ev.Speaking {
			cond = Speech
		}

		start := clamp(int(math.RoundToEven(ev.Start/tr)), 0, n)
		end := clamp(int(math.RoundToEven(ev.End/tr)), 0, n)
		for i := start; i < end; i++ {
			conditions[i] = cond
		}
	}

	return conditions, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// pure reports whether every entry of window holds the same known condition
func pure(window []Condition) bool {
	if len(window) == 0 || window[0] == Unknown {
		return false
	}
	for _, c := range window[1:] {
		if c != window[0] {
			return false
		}
	}
	return true
}

// Select scans the label array left to right and keeps indices whose window
// [t-Buffer, t+Buffer) is pure and lies entirely in one segment, and that are
// at least Separation after the previous index kept in that segment. Windows
// that straddle the segment boundary are dropped.
func Select(conditions []Condition, p Params) [2]Samples {
	var out [2]Samples
	n := len(conditions)

	for t := p.Buffer; t < n-p.Buffer-1; t++ {
		start := t - p.Buffer
		end := t + p.Buffer

		var seg Segment
		if start <= p.Boundary && end <= p.Boundary {
			seg = First
		} else if start >= p.Boundary && end >= p.Boundary {
			seg = Second
		} else {
			continue
		}

		if !pure(conditions[start:end]) {
			continue
		}

		raw := out[seg].Raw
		if len(raw) > 0 && t-raw[len(raw)-1] < p.Separation {
			continue
		}

		out[seg].Raw = append(out[seg].Raw, t)
	}

	for seg := range out {
		for _, t := range out[seg].Raw {
			out[seg].Shifted = append(out[seg].Shifted, t+p.LagShift)
			out[seg].Labels = append(out[seg].Labels, conditions[t])
		}
	}

	return out
}

// Derive builds the label array from events and selects the classifier samples
func Derive(events []Event, p Params) (*Result, error) {
	if p.TRDuration <= 0 {
		return nil, errors.Errorf("TR duration must be positive, got %g", p.TRDuration)
	}

	conditions, err := Discretize(events, p.TRDuration)
	if err != nil {
		return nil, err
	}

	return &Result{
		Conditions: conditions,
		Segments:   Select(conditions, p),
	}, nil
}

// Bools converts labels to the binary form the classifier trains on
func Bools(conds []Condition) []bool {
	out := make([]bool, len(conds))
	for i, c := range conds {
		out[i] = c > 0
	}
	return out
}

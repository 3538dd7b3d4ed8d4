package diff

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Trend is the direction of a change between two snapshots.
type Trend string

const (
	TrendIncrease Trend = "increase"
	TrendDecrease Trend = "decrease"
	TrendStable   Trend = "stable"
	// TrendNew and TrendRemoved only apply to employees present in one
	// snapshot.
	TrendNew     Trend = "new"
	TrendRemoved Trend = "removed"
)

// Percent is a relative change. It is +Inf or -Inf when the baseline is zero
// and the new value is not; JSON carries those as "Infinity"/"-Infinity".
type Percent float64

func (p Percent) MarshalJSON() ([]byte, error) {
	f := float64(p)
	switch {
	case math.IsInf(f, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Infinity"`), nil
	case math.IsNaN(f):
		return []byte("0"), nil
	default:
		return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
	}
}

func (p *Percent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "Infinity":
			*p = Percent(math.Inf(1))
		case "-Infinity":
			*p = Percent(math.Inf(-1))
		default:
			return fmt.Errorf("invalid percent %q", s)
		}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid percent: %w", err)
	}
	*p = Percent(f)
	return nil
}

// IsInf reports whether the percentage is unbounded.
func (p Percent) IsInf() bool {
	return math.IsInf(float64(p), 0)
}

// Delta is the change of one counter between two snapshots.
type Delta struct {
	Value1       int     `json:"value1"`
	Value2       int     `json:"value2"`
	Delta        int     `json:"delta"`
	DeltaPercent Percent `json:"deltaPercent"`
	Trend        Trend   `json:"trend"`
}

// NewDelta compares two counter values.
func NewDelta(v1, v2 int) Delta {
	delta := v2 - v1

	var percent float64
	switch {
	case v1 != 0:
		percent = float64(delta) / float64(v1) * 100
	case v2 > 0:
		percent = math.Inf(1)
	case v2 < 0:
		percent = math.Inf(-1)
	}

	return Delta{
		Value1:       v1,
		Value2:       v2,
		Delta:        delta,
		DeltaPercent: Percent(percent),
		Trend:        trendOf(delta),
	}
}

// Changed reports whether the counter moved.
func (d Delta) Changed() bool {
	return d.Delta != 0
}

func trendOf(delta int) Trend {
	switch {
	case delta > 0:
		return TrendIncrease
	case delta < 0:
		return TrendDecrease
	default:
		return TrendStable
	}
}

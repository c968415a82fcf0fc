package metrics

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Value is a metric result. It encodes +Inf as the JSON string "Infinity"
// because JSON numbers cannot represent it.
type Value float64

// IsInf reports whether v is positive infinity (an exact match).
func (v Value) IsInf() bool { return math.IsInf(float64(v), 1) }

func (v Value) String() string {
	switch {
	case math.IsInf(float64(v), 1):
		return "Infinity"
	case math.IsInf(float64(v), -1):
		return "-Infinity"
	default:
		return strconv.FormatFloat(float64(v), 'f', 4, 64)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	switch {
	case math.IsInf(f, 0):
		return json.Marshal(v.String())
	case math.IsNaN(f):
		return []byte("null"), nil
	default:
		return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value(math.NaN())
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch s {
		case "Infinity":
			*v = Value(math.Inf(1))
		case "-Infinity":
			*v = Value(math.Inf(-1))
		default:
			return fmt.Errorf("invalid metric value %q", s)
		}
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid metric value: %w", err)
	}
	*v = Value(f)
	return nil
}

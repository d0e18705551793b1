package report

import "strconv"

// Cell is the variant-encoded value of a single dimension or metric cell in a
// report row. Upstream populates exactly one of the value fields; which one
// varies across report kinds for the same logical metric.
type Cell struct {
	Value        string   `json:"value,omitempty"`
	DisplayLabel string   `json:"displayLabel,omitempty"`
	IntegerValue *string  `json:"integerValue,omitempty"`
	MicrosValue  *string  `json:"microsValue,omitempty"`
	DoubleValue  *float64 `json:"doubleValue,omitempty"`
	DecimalValue *string  `json:"decimalValue,omitempty"`
}

// MetricKind is the scalar type a metric is expected to decode into.
type MetricKind int

const (
	MetricInteger MetricKind = iota
	MetricFloat
)

// MicrosSuffix is appended to a metric's field name when its value is
// micros-scaled. The raw micros integer is kept as-is, never divided down.
const MicrosSuffix = "_micros"

// Display resolves a dimension cell to its human-readable value, preferring
// the label over the raw value.
func (c Cell) Display() string {
	if c.DisplayLabel != "" {
		return c.DisplayLabel
	}
	return c.Value
}

// DecodeMetric interprets a metric cell into a typed scalar. The returned
// suffix is MicrosSuffix when the value is micros-scaled and empty otherwise.
// Unknown or malformed encodings decode to the kind's zero value; a missing
// metric means no activity, not an error.
func DecodeMetric(c Cell, kind MetricKind) (string, any) {
	if c.IntegerValue != nil {
		n, err := strconv.ParseInt(*c.IntegerValue, 10, 64)
		if err != nil {
			return "", zeroValue(kind)
		}
		if kind == MetricFloat {
			return "", float64(n)
		}
		return "", n
	}

	if c.MicrosValue != nil {
		n, err := strconv.ParseInt(*c.MicrosValue, 10, 64)
		if err != nil {
			return MicrosSuffix, int64(0)
		}
		return MicrosSuffix, n
	}

	if c.DoubleValue != nil {
		if kind == MetricInteger {
			return "", int64(*c.DoubleValue)
		}
		return "", *c.DoubleValue
	}

	if raw := decimalString(c); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", zeroValue(kind)
		}
		if kind == MetricInteger {
			return "", int64(f)
		}
		return "", f
	}

	return "", zeroValue(kind)
}

func decimalString(c Cell) string {
	if c.DecimalValue != nil {
		return *c.DecimalValue
	}
	return c.Value
}

func zeroValue(kind MetricKind) any {
	if kind == MetricFloat {
		return float64(0)
	}
	return int64(0)
}

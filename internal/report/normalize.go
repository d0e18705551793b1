package report

import "strings"

// Row is one data row of a generated report: dimension and metric cells keyed
// by their upstream dimension/metric names.
type Row struct {
	DimensionValues map[string]Cell `json:"dimensionValues"`
	MetricValues    map[string]Cell `json:"metricValues"`
}

// Chunk is one element of the streamed report response. Only chunks carrying
// a row payload hold data; header, footer and summary chunks are metadata.
type Chunk struct {
	Row *Row `json:"row"`
}

// Rows extracts the data rows from a chunk sequence, preserving order.
func Rows(chunks []Chunk) []Row {
	rows := make([]Row, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Row == nil {
			continue
		}
		rows = append(rows, *chunk.Row)
	}
	return rows
}

// Record is a flat normalized report row keyed by snake_case field name.
// Values are string, int64 or float64.
type Record map[string]any

// DimensionSpec maps an upstream dimension key to its output column.
type DimensionSpec struct {
	Key    string
	Column string
}

// MetricSpec maps an upstream metric key to its expected scalar kind. Micros
// marks metrics whose only upstream representation is micros-scaled; their
// column carries the _micros suffix and the raw integer value.
type MetricSpec struct {
	Key    string
	Kind   MetricKind
	Micros bool
}

// Column returns the output column name for the metric.
func (m MetricSpec) Column() string {
	name := strings.ToLower(m.Key)
	if m.Micros {
		return name + MicrosSuffix
	}
	return name
}

const dateDimension = "DATE"

// Normalizer flattens raw report rows into records with a stable column set:
// every configured dimension and metric always appears, missing metrics
// decode to their kind's zero value.
type Normalizer struct {
	dims    []DimensionSpec
	metrics []MetricSpec
}

func NewNormalizer(dims []DimensionSpec, metrics []MetricSpec) *Normalizer {
	normalized := make([]DimensionSpec, len(dims))
	for i, dim := range dims {
		if dim.Column == "" {
			dim.Column = strings.ToLower(dim.Key)
		}
		normalized[i] = dim
	}
	return &Normalizer{dims: normalized, metrics: metrics}
}

// Columns returns the output column names in declaration order, dimensions
// first.
func (n *Normalizer) Columns() []string {
	columns := make([]string, 0, len(n.dims)+len(n.metrics))
	for _, dim := range n.dims {
		columns = append(columns, dim.Column)
	}
	for _, metric := range n.metrics {
		columns = append(columns, metric.Column())
	}
	return columns
}

// DimensionKeys returns the upstream dimension keys in order.
func (n *Normalizer) DimensionKeys() []string {
	keys := make([]string, len(n.dims))
	for i, dim := range n.dims {
		keys[i] = dim.Key
	}
	return keys
}

// MetricKeys returns the upstream metric keys in order.
func (n *Normalizer) MetricKeys() []string {
	keys := make([]string, len(n.metrics))
	for i, metric := range n.metrics {
		keys[i] = metric.Key
	}
	return keys
}

// Normalize flattens one raw row into a record.
func (n *Normalizer) Normalize(row Row) Record {
	record := make(Record, len(n.dims)+len(n.metrics))

	for _, dim := range n.dims {
		cell := row.DimensionValues[dim.Key]
		if dim.Key == dateDimension {
			record[dim.Column] = normalizeCompactDate(cell.Value)
			continue
		}
		record[dim.Column] = cell.Display()
	}

	for _, metric := range n.metrics {
		cell := row.MetricValues[metric.Key]
		_, value := DecodeMetric(cell, metric.Kind)
		record[metric.Column()] = value
	}

	return record
}

// NormalizeAll flattens a row sequence, preserving order.
func (n *Normalizer) NormalizeAll(rows []Row) []Record {
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, n.Normalize(row))
	}
	return records
}

// normalizeCompactDate converts an 8-digit YYYYMMDD value to ISO-8601.
// Anything else passes through unchanged; some report variants already
// deliver ISO dates.
func normalizeCompactDate(raw string) string {
	if len(raw) != 8 {
		return raw
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return raw
		}
	}
	return raw[:4] + "-" + raw[4:6] + "-" + raw[6:]
}

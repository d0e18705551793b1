package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func networkRow() Row {
	return Row{
		DimensionValues: map[string]Cell{
			"DATE":    {Value: "20250701"},
			"APP":     {Value: "ca-app-pub-1~1", DisplayLabel: "My App"},
			"FORMAT":  {Value: "NATIVE"},
			"AD_UNIT": {Value: "ca-app-pub-1/2", DisplayLabel: "Home Native"},
		},
		MetricValues: map[string]Cell{
			"AD_REQUESTS":        {IntegerValue: strPtr("1000")},
			"CLICKS":             {IntegerValue: strPtr("10")},
			"ESTIMATED_EARNINGS": {MicrosValue: strPtr("1250000")},
			"IMPRESSIONS":        {IntegerValue: strPtr("100")},
			"IMPRESSION_CTR":     {DoubleValue: floatPtr(0.1)},
			"MATCHED_REQUESTS":   {IntegerValue: strPtr("900")},
			"MATCH_RATE":         {DoubleValue: floatPtr(0.9)},
			"IMPRESSION_RPM":     {DoubleValue: floatPtr(12.5)},
			// SHOW_RATE intentionally absent.
		},
	}
}

func TestNormalizeNetworkRow(t *testing.T) {
	record := NetworkNormalizer().Normalize(networkRow())

	assert.Equal(t, "2025-07-01", record["date"])
	assert.Equal(t, "My App", record["app_name"])
	assert.Equal(t, "NATIVE", record["format"])
	assert.Equal(t, "Home Native", record["ad_unit_name"])
	assert.Equal(t, int64(1000), record["ad_requests"])
	assert.Equal(t, int64(10), record["clicks"])
	assert.Equal(t, int64(1250000), record["estimated_earnings_micros"])
	assert.Equal(t, int64(100), record["impressions"])
	assert.Equal(t, 0.1, record["impression_ctr"])
	assert.Equal(t, 12.5, record["impression_rpm"])

	// A missing metric still produces its column with a typed zero.
	assert.Equal(t, float64(0), record["show_rate"])
}

func TestNormalizeStableColumnSet(t *testing.T) {
	n := NetworkNormalizer()
	record := n.Normalize(Row{})

	columns := n.Columns()
	require.Len(t, record, len(columns))
	for _, column := range columns {
		_, ok := record[column]
		assert.True(t, ok, "column %s missing from record", column)
	}
}

func TestNormalizeDatePassThrough(t *testing.T) {
	n := NetworkNormalizer()

	record := n.Normalize(Row{DimensionValues: map[string]Cell{"DATE": {Value: "2025-07-01"}}})
	assert.Equal(t, "2025-07-01", record["date"])

	record = n.Normalize(Row{DimensionValues: map[string]Cell{"DATE": {Value: "2025070"}}})
	assert.Equal(t, "2025070", record["date"])

	record = n.Normalize(Row{DimensionValues: map[string]Cell{"DATE": {Value: "2025julX"}}})
	assert.Equal(t, "2025julX", record["date"])
}

func TestRowsSkipsChunksWithoutRowPayload(t *testing.T) {
	row := networkRow()
	chunks := []Chunk{
		{}, // header
		{Row: &row},
		{}, // footer
	}
	rows := Rows(chunks)
	require.Len(t, rows, 1)
	assert.Equal(t, "20250701", rows[0].DimensionValues["DATE"].Value)
}

func TestMediationNormalizerColumns(t *testing.T) {
	columns := MediationNormalizer().Columns()
	assert.Equal(t, []string{
		"date", "app", "ad_unit", "ad_source", "ad_source_instance",
		"mediation_group", "country", "app_version_name",
		"ad_requests", "clicks", "estimated_earnings_micros", "impressions",
		"impression_ctr", "matched_requests", "match_rate", "observed_ecpm_micros",
	}, columns)
}

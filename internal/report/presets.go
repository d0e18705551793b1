package report

// NetworkNormalizer returns the normalizer for the daily network report
// export backing the CTR alert table.
func NetworkNormalizer() *Normalizer {
	return NewNormalizer(
		[]DimensionSpec{
			{Key: "DATE", Column: "date"},
			{Key: "APP", Column: "app_name"},
			{Key: "FORMAT", Column: "format"},
			{Key: "AD_UNIT", Column: "ad_unit_name"},
		},
		[]MetricSpec{
			{Key: "AD_REQUESTS", Kind: MetricInteger},
			{Key: "CLICKS", Kind: MetricInteger},
			{Key: "ESTIMATED_EARNINGS", Kind: MetricInteger, Micros: true},
			{Key: "IMPRESSIONS", Kind: MetricInteger},
			{Key: "IMPRESSION_CTR", Kind: MetricFloat},
			{Key: "MATCHED_REQUESTS", Kind: MetricInteger},
			{Key: "MATCH_RATE", Kind: MetricFloat},
			{Key: "IMPRESSION_RPM", Kind: MetricFloat},
			{Key: "SHOW_RATE", Kind: MetricFloat},
		},
	)
}

// MediationNormalizer returns the normalizer for the daily mediation report
// archived as JSONL.
func MediationNormalizer() *Normalizer {
	return NewNormalizer(
		[]DimensionSpec{
			{Key: "DATE", Column: "date"},
			{Key: "APP", Column: "app"},
			{Key: "AD_UNIT", Column: "ad_unit"},
			{Key: "AD_SOURCE", Column: "ad_source"},
			{Key: "AD_SOURCE_INSTANCE", Column: "ad_source_instance"},
			{Key: "MEDIATION_GROUP", Column: "mediation_group"},
			{Key: "COUNTRY", Column: "country"},
			{Key: "APP_VERSION_NAME", Column: "app_version_name"},
		},
		[]MetricSpec{
			{Key: "AD_REQUESTS", Kind: MetricInteger},
			{Key: "CLICKS", Kind: MetricInteger},
			{Key: "ESTIMATED_EARNINGS", Kind: MetricInteger, Micros: true},
			{Key: "IMPRESSIONS", Kind: MetricInteger},
			{Key: "IMPRESSION_CTR", Kind: MetricFloat},
			{Key: "MATCHED_REQUESTS", Kind: MetricInteger},
			{Key: "MATCH_RATE", Kind: MetricFloat},
			{Key: "OBSERVED_ECPM", Kind: MetricInteger, Micros: true},
		},
	)
}

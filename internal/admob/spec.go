package admob

import "time"

type apiDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

type dateRange struct {
	StartDate apiDate `json:"startDate"`
	EndDate   apiDate `json:"endDate"`
}

type sortCondition struct {
	Dimension string `json:"dimension"`
	Order     string `json:"order"`
}

type matchesAny struct {
	Values []string `json:"values"`
}

type dimensionFilter struct {
	Dimension  string     `json:"dimension"`
	MatchesAny matchesAny `json:"matchesAny"`
}

// reportSpec is the request body for report generation. Dimension and metric
// order is preserved as given; at most one time-granularity dimension may be
// present, which the fixed report presets guarantee.
type reportSpec struct {
	DateRange        dateRange         `json:"dateRange"`
	Dimensions       []string          `json:"dimensions"`
	Metrics          []string          `json:"metrics"`
	SortConditions   []sortCondition   `json:"sortConditions"`
	DimensionFilters []dimensionFilter `json:"dimensionFilters,omitempty"`
}

// daySpec builds a single-day report spec sorted ascending by date.
func daySpec(date time.Time, dimensions, metrics []string) reportSpec {
	day := apiDate{Year: date.Year(), Month: int(date.Month()), Day: date.Day()}
	return reportSpec{
		DateRange:      dateRange{StartDate: day, EndDate: day},
		Dimensions:     dimensions,
		Metrics:        metrics,
		SortConditions: []sortCondition{{Dimension: "DATE", Order: "ASCENDING"}},
	}
}

package types

import "time"

// DataPoint is a single sample of a feed.
type DataPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Feed describes a feed on the EmonCMS account.
type Feed struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Tag   string    `json:"tag"`
	Value float64   `json:"value"`
	Time  time.Time `json:"time"`
}

// MyElectricData is the composite result of a single refresh. Each successful
// refresh replaces the previous value entirely.
type MyElectricData struct {
	PowerNow      float64     `json:"powerNow"`
	UsageToday    float64     `json:"usageToday"`
	LineChartData []DataPoint `json:"lineChartData"`
	BarChartData  []DataPoint `json:"barChartData"`
}

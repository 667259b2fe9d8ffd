package domain

// Trend is the direction of BMI change between the oldest and the most recent
// record of a series.
type Trend string

// Trend values.
const (
	TrendIncreasing Trend = "Increasing"
	TrendDecreasing Trend = "Decreasing"
	TrendNone       Trend = "No trend"
)

// Statistics summarises a history series.
type Statistics struct {
	TotalRecords int     `json:"totalRecords"`
	CurrentBMI   float64 `json:"currentBmi"`
	AverageBMI   float64 `json:"averageBmi"`
	MinBMI       float64 `json:"minBmi"`
	MaxBMI       float64 `json:"maxBmi"`
	WeightChange float64 `json:"weightChange"`
	BMITrend     Trend   `json:"bmiTrend"`
}

// Aggregate computes Statistics over series, which must be ordered most recent
// first. It returns nil for an empty series.
//
// The trend compares only the first and last records; it is not a fitted line.
func Aggregate(series []Record) *Statistics {
	if len(series) == 0 {
		return nil
	}
	newest, oldest := series[0], series[len(series)-1]

	st := &Statistics{
		TotalRecords: len(series),
		CurrentBMI:   newest.Value,
		MinBMI:       newest.Value,
		MaxBMI:       newest.Value,
		BMITrend:     TrendNone,
	}
	var sum float64
	for _, r := range series {
		sum += r.Value
		st.MinBMI = min(st.MinBMI, r.Value)
		st.MaxBMI = max(st.MaxBMI, r.Value)
	}
	st.AverageBMI = sum / float64(len(series))

	if len(series) > 1 {
		st.WeightChange = newest.WeightKg - oldest.WeightKg
		switch {
		case newest.Value > oldest.Value:
			st.BMITrend = TrendIncreasing
		case newest.Value < oldest.Value:
			st.BMITrend = TrendDecreasing
		}
	}
	return st
}

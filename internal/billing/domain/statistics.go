package billing

import "sort"

// Statistics is the aggregate band shared by every staged row of a period.
type Statistics struct {
	Total  float64 `json:"total"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// ComputeStatistics aggregates the present, non-negative values.
// An empty filtered set yields zero for every field.
func ComputeStatistics(values []*float64) Statistics {
	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if v == nil || *v < 0 {
			continue
		}
		valid = append(valid, *v)
	}
	if len(valid) == 0 {
		return Statistics{}
	}

	sort.Float64s(valid)
	var total float64
	for _, v := range valid {
		total += v
	}

	n := len(valid)
	median := valid[n/2]
	if n%2 == 0 {
		median = (valid[n/2-1] + valid[n/2]) / 2
	}
	return Statistics{
		Total:  total,
		Mean:   total / float64(n),
		Median: median,
	}
}

// ConsumptionValues extracts the consumption column of a submission.
func ConsumptionValues(readings []UnitReading) []*float64 {
	values := make([]*float64, len(readings))
	for i := range readings {
		values[i] = readings[i].ConsumptionM3
	}
	return values
}

package domain

import "time"

// TrendPoint is one dated row of search interest, keyed by keyword.
type TrendPoint struct {
	Date      time.Time          `json:"date"`
	IsPartial bool               `json:"is_partial"`
	Values    map[string]float64 `json:"values"`
}

// TrendSeries is an ascending, date-unique sequence of trend points.
type TrendSeries struct {
	Keywords []string     `json:"keywords"`
	Points   []TrendPoint `json:"points"`
}

// Max returns the largest value across every keyword and date.
func (s TrendSeries) Max() float64 {
	var max float64
	for _, p := range s.Points {
		for _, kw := range s.Keywords {
			if v := p.Values[kw]; v > max {
				max = v
			}
		}
	}
	return max
}

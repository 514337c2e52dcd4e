package enrich

import "github.com/racetiming/pipeline/model"

// PenaltyFromControlLog produces the (warnings, laps) values for a car from
// the control-log penalty lookup. A car absent from the lookup
// is treated as (0,0), clearing any stale penalty it previously carried.
func PenaltyFromControlLog(lookup map[string]model.CarPenalty, carNumber string) (warnings, laps int) {
	p, ok := lookup[carNumber]
	if !ok {
		return 0, 0
	}
	return p.Warnings, p.Laps
}

package myelectric

import "github.com/emonview/emonview/pkg/types"

// DailyDeltas converts a cumulative daily series into the amount used on each
// day. Point i of the result is sample i+1 minus sample i, stamped with the
// later sample's time, so the result has one fewer point than the input.
func DailyDeltas(points []types.DataPoint) []types.DataPoint {
	if len(points) < 2 {
		return []types.DataPoint{}
	}
	deltas := make([]types.DataPoint, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		deltas = append(deltas, types.DataPoint{
			Time:  points[i].Time,
			Value: points[i].Value - points[i-1].Value,
		})
	}
	return deltas
}

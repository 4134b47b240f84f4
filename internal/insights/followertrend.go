package insights

import (
	"sort"
	"time"

	"github.com/pulsoria/social-sync/internal/domain"
)

// anchorFactor separates a plausible absolute snapshot from one more daily
// gain. The threshold is a best-effort guess; providers give no authoritative
// signal either way.
const anchorFactor = 10

// TrendPoint is one day of the reconstructed cumulative follower series.
type TrendPoint struct {
	Date      time.Time `json:"date"`
	Followers int64     `json:"followers"`
}

// FollowerTrend rebuilds a cumulative follower series from daily metric rows.
// Some providers report daily gains, others an absolute snapshot only on the
// latest day, and nothing in the payload says which. When the last value
// dwarfs every prior one it is treated as an absolute anchor and the prior
// values as gains; otherwise the whole series is summed as gains on top of
// baseline.
func FollowerTrend(metrics []domain.DailyMetric, baseline int64) []TrendPoint {
	entries := make([]domain.DailyMetric, 0, len(metrics))
	for _, m := range metrics {
		if m.Followers != nil {
			entries = append(entries, m)
		}
	}
	if len(entries) == 0 {
		return nil
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.Before(entries[j].Date)
	})

	lastValue := *entries[len(entries)-1].Followers
	var maxPriorGain int64
	for _, e := range entries[:len(entries)-1] {
		if v := *e.Followers; v > maxPriorGain {
			maxPriorGain = v
		}
	}

	anchored := lastValue > 1 &&
		(len(entries) == 1 || lastValue > anchorFactor*maxPriorGain)

	points := make([]TrendPoint, len(entries))
	running := baseline
	for i, e := range entries {
		if anchored && i == len(entries)-1 {
			v := lastValue
			if baseline > v {
				v = baseline
			}
			points[i] = TrendPoint{Date: e.Date, Followers: v}
			break
		}
		running += *e.Followers
		points[i] = TrendPoint{Date: e.Date, Followers: running}
	}
	return points
}

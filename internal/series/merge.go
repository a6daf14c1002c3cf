package series

import (
	"sort"
	"time"
)

// Merge reconciles two collections by date. Points from incoming replace
// same-date points from existing; the result is sorted newest first.
func Merge(existing, incoming Collection) Collection {
	ind := incoming.Indicator
	if ind == "" {
		ind = existing.Indicator
	}

	byDate := make(map[string]Point, len(existing.Points)+len(incoming.Points))
	for _, p := range existing.Points {
		if p.Date == "" {
			continue
		}
		byDate[p.Date] = p
	}
	for _, p := range incoming.Points {
		if p.Date == "" {
			continue
		}
		byDate[p.Date] = p
	}

	points := make([]Point, 0, len(byDate))
	for _, p := range byDate {
		points = append(points, p)
	}
	SortNewestFirst(points)
	return Collection{Indicator: ind, Points: points}
}

// SortNewestFirst orders points by descending timestamp, breaking ties by date.
func SortNewestFirst(points []Point) {
	sort.SliceStable(points, func(i, j int) bool {
		ti, tj := points[i].Time(), points[j].Time()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return points[i].Date > points[j].Date
	})
}

// IsFresh reports whether the newest point is younger than maxAge at now.
// Empty collections are never fresh.
func IsFresh(c Collection, maxAge time.Duration, now time.Time) bool {
	if len(c.Points) == 0 {
		return false
	}
	newest := c.Points[0].Time()
	for _, p := range c.Points[1:] {
		if t := p.Time(); t.After(newest) {
			newest = t
		}
	}
	return now.Sub(newest) < maxAge
}

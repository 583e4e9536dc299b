package sessions

import (
	"time"
	_ "time/tzdata"
)

// window is a local-time range [start,end] in one market's timezone.
type window struct {
	label string
	loc   *time.Location
	start [2]int
	end   [2]int
}

func mustTZ(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

var (
	tokyo   = mustTZ("Asia/Tokyo")
	london  = mustTZ("Europe/London")
	newYork = mustTZ("America/New_York")

	killZones = []window{
		{label: "ASIA_OPEN", loc: tokyo, start: [2]int{9, 0}, end: [2]int{10, 30}},
		{label: "LONDON_OPEN", loc: london, start: [2]int{7, 0}, end: [2]int{10, 0}},
		{label: "NY_OPEN", loc: newYork, start: [2]int{8, 30}, end: [2]int{11, 0}},
		{label: "LONDON_NY_OVERLAP", loc: london, start: [2]int{13, 30}, end: [2]int{16, 0}},
		{label: "NY_CLOSE", loc: newYork, start: [2]int{15, 0}, end: [2]int{16, 15}},
	}
)

func inRange(local time.Time, startHM, endHM [2]int) bool {
	start := time.Date(local.Year(), local.Month(), local.Day(), startHM[0], startHM[1], 0, 0, local.Location())
	end := time.Date(local.Year(), local.Month(), local.Day(), endHM[0], endHM[1], 0, 0, local.Location())
	return !local.Before(start) && !local.After(end)
}

// ActiveKillZones returns the session labels active at asOf, in table order.
// Weekends return nil. The result depends only on asOf.
func ActiveKillZones(asOf time.Time) []string {
	if asOf.IsZero() {
		return nil
	}
	var labels []string
	for _, w := range killZones {
		local := asOf.In(w.loc)
		if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if inRange(local, w.start, w.end) {
			labels = append(labels, w.label)
		}
	}
	return labels
}

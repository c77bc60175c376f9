package dispatch

import "github.com/live-watch/livewatch/internal/event"

type outcome int

const (
	outcomeAccepted outcome = iota
	outcomeFiltered
	outcomeFailed
)

// Counts tallies what happened to one category's events.
type Counts struct {
	Accepted int
	Filtered int
	Failed   int
}

// Stats is a point-in-time copy of a dispatcher's counters.
type Stats struct {
	ByCategory map[event.Category]Counts
	NewViewers int

	// Viewers is the last reported viewer count.
	Viewers int
}

func newStats() Stats {
	return Stats{ByCategory: make(map[event.Category]Counts)}
}

// Total sums the counts over every category.
func (s Stats) Total() Counts {
	var t Counts
	for _, c := range s.ByCategory {
		t.Accepted += c.Accepted
		t.Filtered += c.Filtered
		t.Failed += c.Failed
	}
	return t
}

func (d *Dispatcher) record(cat event.Category, o outcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.stats.ByCategory[cat]
	switch o {
	case outcomeAccepted:
		c.Accepted++
	case outcomeFiltered:
		c.Filtered++
	case outcomeFailed:
		c.Failed++
	}
	d.stats.ByCategory[cat] = c
}

// Stats returns a consistent copy of the counters taken under the lock.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := Stats{
		ByCategory: make(map[event.Category]Counts, len(d.stats.ByCategory)),
		NewViewers: d.stats.NewViewers,
		Viewers:    d.stats.Viewers,
	}
	for k, v := range d.stats.ByCategory {
		cp.ByCategory[k] = v
	}
	return cp
}

package catalog

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

/*
The catalog is a record of what a harvest run processed.
It is the primitive for verifying, inventorying and auditing
what was archived for each work group.
*/

// WorkGroup summarizes one work group's scan.
type WorkGroup struct {
	Name string `json:"name"`

	// Boundary is the newest query execution archived in this run, it is
	// where the next run stops scanning.
	Boundary         string `json:"boundary,omitempty"`
	PreviousBoundary string `json:"previous_boundary,omitempty"`
	NumRecords       int    `json:"num_records"`
	NumObjects       int    `json:"num_objects"`
	Completed        bool   `json:"completed"`
}

// Catalog represents the catalog of work groups processed by a run
type Catalog struct {
	RunID     string    `json:"run_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Completed bool      `json:"completed"`

	mu         sync.Mutex
	workGroups map[string]*WorkGroup
}

func New(runID string, start time.Time) *Catalog {
	return &Catalog{
		RunID:      runID,
		StartTime:  start,
		workGroups: make(map[string]*WorkGroup),
	}
}

// Start registers a work group scan.
func (c *Catalog) Start(name, previousBoundary string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workGroups[name] = &WorkGroup{
		Name:             name,
		PreviousBoundary: previousBoundary,
	}
}

// Flushed accounts for one archived object of n records.
func (c *Catalog) Flushed(name, boundary string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wg := c.entry(name)
	wg.Boundary = boundary
	wg.NumRecords += n
	wg.NumObjects++
}

func (c *Catalog) Complete(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry(name).Completed = true
}

func (c *Catalog) Finish(end time.Time, completed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EndTime = end
	c.Completed = completed
}

// WorkGroups returns a snapshot of every work group, sorted by name.
func (c *Catalog) WorkGroups() []WorkGroup {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]WorkGroup, 0, len(c.workGroups))
	for _, wg := range c.workGroups {
		out = append(out, *wg)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

func (c *Catalog) entry(name string) *WorkGroup {
	wg, ok := c.workGroups[name]
	if !ok {
		wg = &WorkGroup{Name: name}
		c.workGroups[name] = wg
	}
	return wg
}

func (c *Catalog) MarshalJSON() ([]byte, error) {
	wgs := c.WorkGroups()

	c.mu.Lock()
	defer c.mu.Unlock()
	return json.Marshal(struct {
		RunID      string      `json:"run_id"`
		StartTime  time.Time   `json:"start_time"`
		EndTime    time.Time   `json:"end_time"`
		Completed  bool        `json:"completed"`
		WorkGroups []WorkGroup `json:"work_groups"`
	}{
		RunID:      c.RunID,
		StartTime:  c.StartTime,
		EndTime:    c.EndTime,
		Completed:  c.Completed,
		WorkGroups: wgs,
	})
}

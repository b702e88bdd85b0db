package cache

import "strconv"

// Stats describes the cache after the most recent update
type Stats struct {
	Generation uint64
	Nodes      int // Cached geometry-bearing nodes
	Triangles  int
	Materials  int // Material table entries, stale ones included
	Garbage    int // Stale material entries
	Dissolved  int // Nodes regenerated in the last pass
	Evicted    int // Nodes dropped in the last pass
	Rebuilds   int // Material table compactions so far
}

// Rows returns the stats as label/value pairs for table output
func (s Stats) Rows() [][]string {
	return [][]string{
		{"Generation", strconv.FormatUint(s.Generation, 10)},
		{"Nodes", strconv.Itoa(s.Nodes)},
		{"Triangles", strconv.Itoa(s.Triangles)},
		{"Materials", strconv.Itoa(s.Materials)},
		{"Stale materials", strconv.Itoa(s.Garbage)},
		{"Dissolved", strconv.Itoa(s.Dissolved)},
		{"Evicted", strconv.Itoa(s.Evicted)},
		{"Material rebuilds", strconv.Itoa(s.Rebuilds)},
	}
}

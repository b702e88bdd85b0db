package bvh

import "strconv"

// Stats describes the shape of a populated tree
type Stats struct {
	Nodes        int
	Leaves       int
	EmptyLeaves  int
	Height       int
	Triangles    int
	MaxLeafSize  int
	Slots        int // Allocated array slots, 2^Height
	InvalidNodes int // Draft nodes that had both triangles and children
}

// Occupancy is the fraction of allocated slots in use
func (s Stats) Occupancy() float64 {
	if s.Slots == 0 {
		return 0
	}
	return float64(s.Nodes) / float64(s.Slots)
}

// Rows returns the stats as label/value pairs for table output
func (s Stats) Rows() [][]string {
	return [][]string{
		{"Nodes", strconv.Itoa(s.Nodes)},
		{"Leaves", strconv.Itoa(s.Leaves)},
		{"Empty leaves", strconv.Itoa(s.EmptyLeaves)},
		{"Height", strconv.Itoa(s.Height)},
		{"Triangles", strconv.Itoa(s.Triangles)},
		{"Max leaf size", strconv.Itoa(s.MaxLeafSize)},
		{"Slots", strconv.Itoa(s.Slots)},
		{"Occupancy", strconv.FormatFloat(100*s.Occupancy(), 'f', 1, 64) + "%"},
		{"Invalid nodes", strconv.Itoa(s.InvalidNodes)},
	}
}

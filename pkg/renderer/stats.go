package renderer

import (
	"strconv"
	"time"
)

// JobStats tracks the progress of a rendering job
type JobStats struct {
	Workers          int           `json:"workers"`
	Samples          int64         `json:"samples"`     // Camera rays traced
	Buckets          int64         `json:"buckets"`     // Buckets splatted into the image
	Starvations      int64         `json:"starvations"` // Times a worker found no clean bucket
	Elapsed          time.Duration `json:"elapsed"`
	SamplesPerSecond float64       `json:"samplesPerSecond"`
	Active           bool          `json:"active"`
}

// Rows formats the stats as label/value pairs for table output
func (s JobStats) Rows() [][]string {
	return [][]string{
		{"Workers", strconv.Itoa(s.Workers)},
		{"Samples", strconv.FormatInt(s.Samples, 10)},
		{"Buckets splatted", strconv.FormatInt(s.Buckets, 10)},
		{"Starvation events", strconv.FormatInt(s.Starvations, 10)},
		{"Elapsed", s.Elapsed.Round(time.Millisecond).String()},
		{"Samples/sec", strconv.FormatFloat(s.SamplesPerSecond, 'f', 0, 64)},
	}
}

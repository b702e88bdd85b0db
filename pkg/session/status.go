package session

import (
	"fmt"
	"strconv"

	"github.com/df07/go-scene-raytracer/pkg/bvh"
	"github.com/df07/go-scene-raytracer/pkg/cache"
	"github.com/df07/go-scene-raytracer/pkg/renderer"
)

// Phase is the coarse state of a session
type Phase uint8

const (
	PhaseIdle       Phase = iota // No snapshot and nothing in flight
	PhaseBuilding                // Draft build in flight
	PhaseAssembling              // Tree flattening in flight
	PhaseRendering               // A job is producing samples
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseBuilding:
		return "building"
	case PhaseAssembling:
		return "assembling"
	case PhaseRendering:
		return "rendering"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// MarshalText encodes the phase by name
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Status describes a session after a tick
type Status struct {
	Phase      Phase             `json:"phase"`
	Version    uint64            `json:"version"` // Version of the published snapshot
	Builds     int               `json:"builds"`
	Assemblies int               `json:"assemblies"`
	Restarts   int               `json:"restarts"`
	Viewport   renderer.Viewport `json:"viewport"`
	Cache      cache.Stats       `json:"cache"`
	BVH        bvh.Stats         `json:"bvh"`
	Job        renderer.JobStats `json:"job"`
}

// Status reports the current state without ticking
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	st := Status{
		Version:    s.version,
		Builds:     s.builds,
		Assemblies: s.assemblies,
		Restarts:   s.restarts,
		Viewport:   s.viewport,
		Cache:      s.cache.Stats(),
	}
	if s.snapshot != nil && s.snapshot.Tree != nil {
		st.BVH = s.snapshot.Tree.Stats()
	}

	job := s.renderer.Job()
	if job != nil {
		st.Job = job.Stats()
	}

	switch {
	case s.draftTask != nil:
		st.Phase = PhaseBuilding
	case s.assembleTask != nil:
		st.Phase = PhaseAssembling
	case job != nil && job.Active():
		st.Phase = PhaseRendering
	default:
		st.Phase = PhaseIdle
	}
	return st
}

// Rows formats the session fields as label/value pairs for table output
func (st Status) Rows() [][]string {
	return [][]string{
		{"Phase", st.Phase.String()},
		{"Snapshot", "v" + strconv.FormatUint(st.Version, 10)},
		{"Draft builds", strconv.Itoa(st.Builds)},
		{"Assemblies", strconv.Itoa(st.Assemblies)},
		{"Job restarts", strconv.Itoa(st.Restarts)},
		{"Viewport", fmt.Sprintf("%dx%d", st.Viewport.Width, st.Viewport.Height)},
	}
}

// Package timing records how long the stages of a run take.
package timing

import (
	"fmt"
	"sync"
	"time"
)

// Stage is the measured duration of one named stage.
type Stage struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// Stages records stage durations in the order the stages finished.
type Stages struct {
	mu     sync.Mutex
	stages []Stage
	now    func() time.Time
}

func NewStages() *Stages {
	return &Stages{now: time.Now}
}

// Track starts measuring name. The returned func stops the measurement and
// returns the elapsed time; calling it again is a no-op.
func (s *Stages) Track(name string) func() time.Duration {
	start := s.now()
	var once sync.Once
	var d time.Duration
	return func() time.Duration {
		once.Do(func() {
			d = s.now().Sub(start)
			s.mu.Lock()
			s.stages = append(s.stages, Stage{Name: name, Duration: d})
			s.mu.Unlock()
		})
		return d
	}
}

// All returns a copy of the recorded stages.
func (s *Stages) All() []Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Stage, len(s.stages))
	copy(out, s.stages)
	return out
}

// Total sums all recorded stages.
func (s *Stages) Total() time.Duration {
	var total time.Duration
	for _, st := range s.All() {
		total += st.Duration
	}
	return total
}

// Format renders d as hh:mm:ss.
func Format(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

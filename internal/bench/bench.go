// Package bench repeats a detection call and reports its wall time.
package bench

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Report collects the wall time of every cycle.
type Report struct {
	Durations []time.Duration
	Faces     int // faces found by the last cycle
}

// Average returns the mean cycle time
func (r Report) Average() time.Duration {
	if len(r.Durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range r.Durations {
		total += d
	}
	return total / time.Duration(len(r.Durations))
}

// Fastest returns the shortest cycle time
func (r Report) Fastest() time.Duration {
	var best time.Duration
	for i, d := range r.Durations {
		if i == 0 || d < best {
			best = d
		}
	}
	return best
}

// Slowest returns the longest cycle time
func (r Report) Slowest() time.Duration {
	var worst time.Duration
	for _, d := range r.Durations {
		worst = max(worst, d)
	}
	return worst
}

// Run calls detect cycles times, logging each cycle, and stops at the first error.
func Run(cycles int, log logrus.FieldLogger, detect func() (int, error)) (Report, error) {
	if cycles <= 0 {
		return Report{}, errors.New("cycles must be positive")
	}

	report := Report{Durations: make([]time.Duration, 0, cycles)}
	for i := 0; i < cycles; i++ {
		start := time.Now()
		faces, err := detect()
		elapsed := time.Since(start)
		if err != nil {
			return report, fmt.Errorf("cycle %d: %w", i+1, err)
		}

		report.Durations = append(report.Durations, elapsed)
		report.Faces = faces

		log.WithFields(logrus.Fields{
			"cycle":   i + 1,
			"faces":   faces,
			"time_ms": float64(elapsed.Microseconds()) / 1000,
		}).Info("detection finished")
	}

	log.WithFields(logrus.Fields{
		"cycles":     cycles,
		"average_ms": float64(report.Average().Microseconds()) / 1000,
		"fastest_ms": float64(report.Fastest().Microseconds()) / 1000,
		"slowest_ms": float64(report.Slowest().Microseconds()) / 1000,
	}).Info("benchmark finished")

	return report, nil
}

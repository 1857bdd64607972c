// Package rollup aggregates task statuses into completion metrics for a
// parent task, a station month, a whole VO and its tertials.
package rollup

import (
	"math"

	"github.com/Barrelito/sam-a-sub000/task"
)

// Stats partitions a set of tasks by progress. Done and reported tasks both
// count as completed.
type Stats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	NotStarted int `json:"not_started"`
	Percentage int `json:"percentage"`
}

// Compute counts tasks per progress bucket.
func Compute(tasks []*task.Task) Stats {
	var s Stats
	for _, t := range tasks {
		s.add(t)
	}
	s.Percentage = Percentage(s.Completed, s.Total)
	return s
}

func (s *Stats) add(t *task.Task) {
	s.Total++
	switch {
	case t.Status.Completed():
		s.Completed++
	case t.Status == task.StatusInProgress:
		s.InProgress++
	default:
		s.NotStarted++
	}
}

// Merge adds o's counts to s and recomputes the percentage.
func (s *Stats) Merge(o Stats) {
	s.Total += o.Total
	s.Completed += o.Completed
	s.InProgress += o.InProgress
	s.NotStarted += o.NotStarted
	s.Percentage = Percentage(s.Completed, s.Total)
}

// Percentage returns done/total as a whole percentage rounded to the nearest
// integer, or 0 when total is 0.
func Percentage(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(done) * 100 / float64(total)))
}

// NeedsReview returns the station tasks marked done that the VO has not
// reviewed yet.
func NeedsReview(tasks []*task.Task) []*task.Task {
	var out []*task.Task
	for _, t := range tasks {
		if task.NeedsReview(t) {
			out = append(out, t)
		}
	}
	return out
}

// Tertial maps a month (1-12) to its four-month reporting period:
// 1 is January-April, 2 is May-August, 3 is September-December.
// Months outside 1-12 map to 0.
func Tertial(month int) int {
	if month < 1 || month > 12 {
		return 0
	}
	return (month-1)/4 + 1
}

// TertialMonths returns the months of tertial n, or nil for an unknown
// tertial.
func TertialMonths(n int) []int {
	if n < 1 || n > 3 {
		return nil
	}
	first := (n-1)*4 + 1
	return []int{first, first + 1, first + 2, first + 3}
}

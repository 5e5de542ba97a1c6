package inmemdb

import (
	"time"

	"github.com/trezcool/soko/core/identity"
)

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

// sameCourse matches a stored reference against a queried one.
// An unknown query reference matches everything.
func sameCourse(stored, queried identity.CourseRef) bool {
	return queried.IsZero() || stored.Equal(queried)
}

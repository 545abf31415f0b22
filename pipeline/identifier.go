package pipeline

import (
	"fmt"
	"time"
)

const identifierLayout = "20060102-150405.000"

// identifiers names saved frames. Names sort in creation order and never
// repeat within a run, even if the wall clock steps backwards.
type identifiers struct {
	last time.Time
	seq  int64
}

func (ids *identifiers) next(now time.Time) string {
	now = now.UTC()
	if now.Before(ids.last) {
		now = ids.last
	}
	ids.last = now
	ids.seq++
	return fmt.Sprintf("%s-%06d", now.Format(identifierLayout), ids.seq)
}

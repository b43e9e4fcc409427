// Package ids generates the identifiers sockflow stamps on dispatched
// messages: message ids, correlation ids and fallback client ids.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// entropy is monotonic within the process so ids created in the same
// millisecond still sort in creation order.
var entropy = &ulid.LockedMonotonicReader{
	MonotonicReader: ulid.Monotonic(rand.Reader, 0),
}

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
// Safe for concurrent use.
func CreateULID() string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

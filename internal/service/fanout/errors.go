package fanout

import (
	"errors"
	"fmt"
)

var (
	// ErrHubClosed is returned by Subscribe after Close
	ErrHubClosed = errors.New("fanout hub closed")

	// ErrSubscriptionClosed is returned by Next once the subscription ended
	ErrSubscriptionClosed = errors.New("subscription closed")
)

// MissedEventsError reports that the subscriber fell behind and the oldest
// buffered events were discarded. It is returned once per gap; the
// subscription stays usable and later calls to Next continue with the
// newest retained events.
type MissedEventsError struct {
	Count uint64
}

func (e *MissedEventsError) Error() string {
	return fmt.Sprintf("subscriber fell behind: %d events dropped", e.Count)
}

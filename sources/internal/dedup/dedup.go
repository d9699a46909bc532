// Package dedup decides whether a decoded device request duplicates
// previously stored state. One policy is active per event source, chosen at
// configuration time.
package dedup

import (
	"context"
	"fmt"

	"github.com/thingflow/thingflow/common/model"
)

// Deduplicator reports whether a decoded request is a duplicate. A lookup
// failure returns an error; it is never silently treated as "not a
// duplicate", since that risks reprocessing storms.
type Deduplicator interface {
	IsDuplicate(ctx context.Context, req *model.DecodedDeviceRequest) (bool, error)
}

// DuplicateDetectionError reports a lookup-layer failure during duplicate
// detection.
type DuplicateDetectionError struct {
	Err error
}

func (e *DuplicateDetectionError) Error() string {
	return fmt.Sprintf("duplicate detection failed: %v", e.Err)
}

func (e *DuplicateDetectionError) Unwrap() error { return e.Err }

// None is the pass-through policy used by sources without deduplication.
type None struct{}

func (None) IsDuplicate(context.Context, *model.DecodedDeviceRequest) (bool, error) {
	return false, nil
}

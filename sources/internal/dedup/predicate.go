package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/thingflow/thingflow/common/model"
)

const defaultPredicateTimeout = 5 * time.Second

// PredicateFunc is a caller-supplied duplicate test. Implementations may
// consult external state and should respect the context deadline.
type PredicateFunc func(ctx context.Context, req *model.DecodedDeviceRequest) (bool, error)

var (
	predMu     sync.RWMutex
	predicates = make(map[string]PredicateFunc)
)

// RegisterPredicate makes a named duplicate test available to wiring
// documents that select the predicate policy. Register from an init
// function, before the service assembles its tenant engines. Registering
// the same name twice panics, like database/sql driver registration.
func RegisterPredicate(name string, fn PredicateFunc) {
	if name == "" || fn == nil {
		panic("dedup: RegisterPredicate with empty name or nil func")
	}
	predMu.Lock()
	defer predMu.Unlock()
	if _, dup := predicates[name]; dup {
		panic("dedup: predicate registered twice: " + name)
	}
	predicates[name] = fn
}

// LookupPredicate returns the duplicate test registered under name.
func LookupPredicate(name string) (PredicateFunc, bool) {
	predMu.RLock()
	defer predMu.RUnlock()
	fn, ok := predicates[name]
	return fn, ok
}

// Predicate wraps an arbitrary duplicate test behind the Deduplicator
// interface, bounding each evaluation with a timeout.
type Predicate struct {
	fn      PredicateFunc
	timeout time.Duration
}

// NewPredicate builds a predicate policy. A non-positive timeout falls back
// to the default.
func NewPredicate(fn PredicateFunc, timeout time.Duration) *Predicate {
	if timeout <= 0 {
		timeout = defaultPredicateTimeout
	}
	return &Predicate{fn: fn, timeout: timeout}
}

// IsDuplicate implements Deduplicator.
func (p *Predicate) IsDuplicate(ctx context.Context, req *model.DecodedDeviceRequest) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	dup, err := p.fn(ctx, req)
	if err != nil {
		return false, &DuplicateDetectionError{Err: err}
	}
	return dup, nil
}

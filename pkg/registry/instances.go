// Package registry holds the process-scoped tables behind store
// construction: the instance registry, which assigns every store a globally
// unique, stable id under a bounded-cardinality policy, and the action
// registry, which maps store types to their registered action
// implementations.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// ErrInstanceLimit is returned by Register when every suffix for a store
// type is taken. In diagnostics mode the store façade treats this as a fatal
// construction error; in production it degrades by reusing suffix 0 (see
// Reuse).
var ErrInstanceLimit = errors.New("store: instance limit reached")

// DefaultMaxInstances is the per-type live instance cap when none is
// configured.
const DefaultMaxInstances = 20

// A maxCount of 0 means unbounded; internally it is treated as effectively
// unlimited rather than literally zero.
const unboundedMax = 1 << 30

// Instances tracks live store instance ids per type name. Membership
// changes are visible immediately to subsequent calls; all methods are safe
// for concurrent use.
type Instances struct {
	mu   sync.Mutex
	live map[string]map[int]struct{}
	// ids maps each allocated id back to its (typeName, suffix) pair.
	// Release consults it rather than parsing the id, so a type name that
	// itself contains "-<digits>" releases into the right bucket.
	ids map[string]allocation
}

type allocation struct {
	typeName string
	suffix   int
}

// NewInstances creates an empty instance registry.
func NewInstances() *Instances {
	return &Instances{
		live: make(map[string]map[int]struct{}),
		ids:  make(map[string]allocation),
	}
}

// Register allocates an id for a new instance of typeName. The first
// instance gets the bare type name; later instances get the first unused
// suffix in 1..maxCount-1, rendered "Name-<n>". When every suffix is live,
// Register returns ErrInstanceLimit and the caller decides whether that is
// fatal (diagnostics) or degradable (production, via Reuse).
func (r *Instances) Register(typeName string, maxCount int) (string, error) {
	if maxCount <= 0 {
		maxCount = unboundedMax
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	suffixes := r.live[typeName]
	if suffixes == nil {
		suffixes = make(map[int]struct{})
		r.live[typeName] = suffixes
	}

	for n := 0; n < maxCount; n++ {
		if _, taken := suffixes[n]; taken {
			continue
		}
		id := render(typeName, n)
		// A sibling type such as "Name-2" can render the same id as
		// "Name" at suffix 2; skip the colliding suffix so ids stay
		// globally unique.
		if _, claimed := r.ids[id]; claimed {
			continue
		}
		suffixes[n] = struct{}{}
		r.ids[id] = allocation{typeName: typeName, suffix: n}
		return id, nil
	}
	return "", fmt.Errorf("%w: %d live instances of %q", ErrInstanceLimit, maxCount, typeName)
}

// Reuse returns the suffix-0 id for typeName without allocating it. This is
// the documented production-mode degradation when Register exhausts: two
// live stores share an id, so cancellation and dispatch bookkeeping can
// cross-talk between them. Callers accept that hazard by calling Reuse.
func (r *Instances) Reuse(typeName string) string {
	return render(typeName, 0)
}

// Release frees the id so a later Register can reuse its suffix. Releasing
// an id that is not live is a no-op.
func (r *Instances) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	alloc, ok := r.ids[id]
	if !ok {
		return
	}
	delete(r.ids, id)

	suffixes := r.live[alloc.typeName]
	delete(suffixes, alloc.suffix)
	if len(suffixes) == 0 {
		delete(r.live, alloc.typeName)
	}
}

// Get returns the lowest-suffix live id for typeName, or ok=false when no
// instance of that type is live.
func (r *Instances) Get(typeName string) (id string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	suffixes := r.live[typeName]
	if len(suffixes) == 0 {
		return "", false
	}
	best := -1
	for n := range suffixes {
		if best == -1 || n < best {
			best = n
		}
	}
	return render(typeName, best), true
}

// Live returns every live instance id, sorted, for inspection surfaces.
func (r *Instances) Live() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for typeName, suffixes := range r.live {
		for n := range suffixes {
			ids = append(ids, render(typeName, n))
		}
	}
	sort.Strings(ids)
	return ids
}

func render(typeName string, n int) string {
	if n == 0 {
		return typeName
	}
	return typeName + "-" + strconv.Itoa(n)
}

package directory

import (
	"context"
	"fmt"
	"sync"
)

// Rotating hands out a different entry on every lookup of the same user,
// cycling through the configured versions. It stands in for a directory whose
// data changes between calls. It is a test and dev double, not a production resolver.
type Rotating struct {
	mu       sync.Mutex
	versions map[string][]ContactInfo
	calls    map[string]int
}

func NewRotating() *Rotating {
	return &Rotating{versions: make(map[string][]ContactInfo), calls: make(map[string]int)}
}

// Add appends versions for the user named by the first entry.
func (r *Rotating) Add(versions ...ContactInfo) {
	if len(versions) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name := versions[0].Name
	for _, v := range versions {
		r.versions[name] = append(r.versions[name], copyInfo(v))
	}
}

func (r *Rotating) ResolveUserContactInfo(_ context.Context, userName string) (ContactInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vs := r.versions[userName]
	if len(vs) == 0 {
		return ContactInfo{}, fmt.Errorf("%s: %w", userName, ErrUnknownUser)
	}
	n := r.calls[userName]
	r.calls[userName] = n + 1
	return copyInfo(vs[n%len(vs)]), nil
}

// Calls reports how many lookups were made for userName.
func (r *Rotating) Calls(userName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[userName]
}

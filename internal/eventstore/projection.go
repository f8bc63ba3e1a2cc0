package eventstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// BranchActivity is a read model of what happened to one branch.
type BranchActivity struct {
	Branch       string    `json:"branch"`
	Built        int       `json:"built"`
	Fetched      int       `json:"fetched"`
	CacheHits    int       `json:"cache_hits"`
	Failures     int       `json:"failures"`
	LastActivity time.Time `json:"last_activity"`
	LastError    string    `json:"last_error,omitempty"`
}

// BranchActivityProjection maintains an in-memory per-branch view reconstructed
// from the events in the store.
type BranchActivityProjection struct {
	mu       sync.RWMutex
	store    Store
	branches map[string]*BranchActivity
	lastSync time.Time
}

// NewBranchActivityProjection creates a new projection backed by the given store.
func NewBranchActivityProjection(store Store) *BranchActivityProjection {
	return &BranchActivityProjection{
		store:    store,
		branches: make(map[string]*BranchActivity),
	}
}

// Rebuild reconstructs the projection from all events in the store.
// This is typically called at startup.
func (p *BranchActivityProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.branches = make(map[string]*BranchActivity)
	for _, event := range events {
		p.applyEventLocked(event)
	}
	p.lastSync = time.Now()
	return nil
}

// Apply processes a single event and updates the projection.
func (p *BranchActivityProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyEventLocked(event)
}

func (p *BranchActivityProjection) applyEventLocked(event Event) {
	switch event.Type() {
	case TypeArtifactResolved:
		var data ArtifactResolvedData
		if err := json.Unmarshal(event.Payload(), &data); err != nil || data.Branch == "" {
			return
		}
		a := p.branchLocked(data.Branch)
		switch data.Origin {
		case "built":
			a.Built++
		case "fetched":
			a.Fetched++
		default:
			a.CacheHits++
		}
		a.LastActivity = event.Timestamp()

	case TypeResolutionFailed:
		var data ResolutionFailedData
		if err := json.Unmarshal(event.Payload(), &data); err != nil || data.Branch == "" {
			return
		}
		a := p.branchLocked(data.Branch)
		a.Failures++
		a.LastError = data.Error
		a.LastActivity = event.Timestamp()
	}
}

func (p *BranchActivityProjection) branchLocked(branch string) *BranchActivity {
	a, ok := p.branches[branch]
	if !ok {
		a = &BranchActivity{Branch: branch}
		p.branches[branch] = a
	}
	return a
}

// Branches returns a copy of every branch summary, most recently active first.
func (p *BranchActivityProjection) Branches() []BranchActivity {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]BranchActivity, 0, len(p.branches))
	for _, a := range p.branches {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].Branch < out[j].Branch
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// Forget drops a branch, used after the branch cache was purged.
func (p *BranchActivityProjection) Forget(branch string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.branches, branch)
}

// LastSyncTime returns when the projection was last rebuilt.
func (p *BranchActivityProjection) LastSyncTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}

package gateway

import "sync"

// registrySnapshot is an immutable view of the registry's indices. Writers
// build a new snapshot and swap it in; readers never block (spec §5:
// "DeploymentRegistry is read-mostly; writers take a short write lock;
// readers use a snapshot"), grounded on the teacher's llm/registry.go
// ProviderRegistry generalized to spec §4.3's three indices.
type registrySnapshot struct {
	byModel map[string][]*Deployment // insertion order preserved
	byTag   map[string][]*Deployment
	byGroup map[string][]*Deployment
	byID    map[string]*Deployment
}

func emptySnapshot() *registrySnapshot {
	return &registrySnapshot{
		byModel: make(map[string][]*Deployment),
		byTag:   make(map[string][]*Deployment),
		byGroup: make(map[string][]*Deployment),
		byID:    make(map[string]*Deployment),
	}
}

// DeploymentRegistry is C7: an in-memory index over deployments.
type DeploymentRegistry struct {
	mu   sync.Mutex // write lock only; readers use atomic pointer load
	snap atomicSnapshot
}

func NewDeploymentRegistry() *DeploymentRegistry {
	r := &DeploymentRegistry{}
	r.snap.store(emptySnapshot())
	return r
}

// Register adds a deployment, rebuilding the snapshot copy-on-write. O(N)
// in the number of existing deployments, which is acceptable: registration
// happens at config load, not on the request hot path (spec §3:
// "Deployments are created at config load and mutated only to update
// limits at runtime").
func (r *DeploymentRegistry) Register(d *Deployment) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.snap.load()
	next := &registrySnapshot{
		byModel: cloneIndex(old.byModel),
		byTag:   cloneIndex(old.byTag),
		byGroup: cloneIndex(old.byGroup),
		byID:    cloneByID(old.byID),
	}
	next.byModel[d.LogicalModel] = append(next.byModel[d.LogicalModel], d)
	for tag := range d.Tags {
		next.byTag[tag] = append(next.byTag[tag], d)
	}
	if d.Group != "" {
		next.byGroup[d.Group] = append(next.byGroup[d.Group], d)
	}
	next.byID[d.ID] = d

	r.snap.store(next)
}

// Unregister removes a deployment by id, rebuilding the snapshot.
func (r *DeploymentRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.snap.load()
	d, ok := old.byID[id]
	if !ok {
		return
	}
	next := &registrySnapshot{
		byModel: cloneIndex(old.byModel),
		byTag:   cloneIndex(old.byTag),
		byGroup: cloneIndex(old.byGroup),
		byID:    cloneByID(old.byID),
	}
	next.byModel[d.LogicalModel] = removeDeployment(next.byModel[d.LogicalModel], id)
	for tag := range d.Tags {
		next.byTag[tag] = removeDeployment(next.byTag[tag], id)
	}
	if d.Group != "" {
		next.byGroup[d.Group] = removeDeployment(next.byGroup[d.Group], id)
	}
	delete(next.byID, id)

	r.snap.store(next)
}

// ByModel returns deployments for a logical model in registration order.
func (r *DeploymentRegistry) ByModel(model string) []*Deployment {
	return r.snap.load().byModel[model]
}

func (r *DeploymentRegistry) ByTag(tag string) []*Deployment {
	return r.snap.load().byTag[tag]
}

func (r *DeploymentRegistry) ByGroup(group string) []*Deployment {
	return r.snap.load().byGroup[group]
}

func (r *DeploymentRegistry) Get(id string) (*Deployment, bool) {
	d, ok := r.snap.load().byID[id]
	return d, ok
}

// AllDeploymentIDs returns every registered deployment id, for diagnostics
// (e.g. a /health check that reports how many deployments are eligible).
func (r *DeploymentRegistry) AllDeploymentIDs() []string {
	snap := r.snap.load()
	ids := make([]string, 0, len(snap.byID))
	for id := range snap.byID {
		ids = append(ids, id)
	}
	return ids
}

// Lookup resolves the eligible candidate list for a request: deployments
// for the model, further narrowed by tag/group routing prefs if set
// (spec §2 data flow: "queries DeploymentRegistry for deployments matching
// model (plus tag/group filters)").
func (r *DeploymentRegistry) Lookup(model string, prefs RoutingPrefs) []*Deployment {
	candidates := r.ByModel(model)
	if len(prefs.Tags) == 0 && prefs.Group == "" {
		return candidates
	}
	out := make([]*Deployment, 0, len(candidates))
	for _, d := range candidates {
		if prefs.Group != "" && d.Group != prefs.Group {
			continue
		}
		if !hasAllTags(d, prefs.Tags) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func hasAllTags(d *Deployment, tags []string) bool {
	for _, t := range tags {
		if !d.HasTag(t) {
			return false
		}
	}
	return true
}

func cloneIndex(src map[string][]*Deployment) map[string][]*Deployment {
	dst := make(map[string][]*Deployment, len(src))
	for k, v := range src {
		cp := make([]*Deployment, len(v))
		copy(cp, v)
		dst[k] = cp
	}
	return dst
}

func cloneByID(src map[string]*Deployment) map[string]*Deployment {
	dst := make(map[string]*Deployment, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func removeDeployment(list []*Deployment, id string) []*Deployment {
	out := list[:0:0]
	for _, d := range list {
		if d.ID != id {
			out = append(out, d)
		}
	}
	return out
}

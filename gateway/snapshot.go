package gateway

import "sync/atomic"

// atomicSnapshot is a lock-free pointer swap, the concrete mechanism behind
// DeploymentRegistry's copy-on-write snapshot (spec §5, §9: "prefer a
// read-mostly snapshot map (copy-on-write) for the registry").
type atomicSnapshot struct {
	p atomic.Pointer[registrySnapshot]
}

func (s *atomicSnapshot) load() *registrySnapshot { return s.p.Load() }
func (s *atomicSnapshot) store(v *registrySnapshot) { s.p.Store(v) }

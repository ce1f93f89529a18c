package gateway

import "github.com/google/uuid"

// UUIDGen is the production IDGen, grounded on the teacher's use of
// google/uuid throughout rag/ and agent/persistence for externally-visible
// identifiers.
type UUIDGen struct{}

func (UUIDGen) NewID() string { return uuid.NewString() }

package importer

// ClaimResult reports whether a natural key may be written.
type ClaimResult int

const (
	ClaimOK ClaimResult = iota
	ClaimDuplicateInFile
	ClaimAlreadyExists
)

type keyState int

const (
	keyPending keyState = iota + 1
	keyCommitted
)

// Guard tracks natural keys for one entity kind during a single import call.
// Keys persisted before the call are loaded once; keys seen in the file move
// from pending to committed after a successful write, or are released after a
// failed one so a later row with the same key can still be written.
type Guard[K comparable] struct {
	existing map[K]struct{}
	seen     map[K]keyState
}

// NewGuard seeds a guard with the keys already in storage.
func NewGuard[K comparable](existing []K) *Guard[K] {
	g := &Guard[K]{
		existing: make(map[K]struct{}, len(existing)),
		seen:     make(map[K]keyState),
	}
	for _, key := range existing {
		g.existing[key] = struct{}{}
	}
	return g
}

// Claim checks key against the file first and then storage. On ClaimOK the key
// is pending until Commit or Release.
func (g *Guard[K]) Claim(key K) ClaimResult {
	if _, ok := g.seen[key]; ok {
		return ClaimDuplicateInFile
	}
	if _, ok := g.existing[key]; ok {
		return ClaimAlreadyExists
	}
	g.seen[key] = keyPending
	return ClaimOK
}

func (g *Guard[K]) Commit(key K) {
	g.seen[key] = keyCommitted
}

func (g *Guard[K]) Release(key K) {
	if g.seen[key] == keyPending {
		delete(g.seen, key)
	}
}

// Committed returns the number of keys written during this call.
func (g *Guard[K]) Committed() int {
	n := 0
	for _, state := range g.seen {
		if state == keyCommitted {
			n++
		}
	}
	return n
}

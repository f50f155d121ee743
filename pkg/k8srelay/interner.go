package k8srelay

import "k8s.io/apimachinery/pkg/types"

// Interner is a bijection between external string UIDs and compact integer
// handles, unique for the lifetime of one session. Ids are drawn from a
// monotonically increasing counter and are never recycled: recycling would
// let a stale waiter list attach a new object to an old pod's Id.
//
// A plain Go map is used rather than a custom hash table. The source this
// package was ported from hand-rolls a non-cryptographic string hasher
// (lookup3) purely to avoid rehashing long UID strings and to control
// collision handling itself; Go's built-in map already resolves collisions
// internally and is the idiomatic choice here, so no third-party hashing
// library is warranted for this single lookup table (see DESIGN.md).
type Interner struct {
	nextID  Id
	uidToID map[types.UID]Id
}

// NewInterner creates an empty Interner with counter starting at 0.
func NewInterner() *Interner {
	return &Interner{
		uidToID: make(map[types.UID]Id),
	}
}

// Intern returns the Id for uid, allocating and storing a new one if uid has
// not been seen before in this session. Idempotent.
func (in *Interner) Intern(uid types.UID) Id {
	if id, ok := in.uidToID[uid]; ok {
		return id
	}
	id := in.nextID
	in.nextID++
	in.uidToID[uid] = id
	return id
}

// Forget unconditionally removes uid from the interner. Callers must
// guarantee no store still references the returned Id after this call.
func (in *Interner) Forget(uid types.UID) {
	delete(in.uidToID, uid)
}

// Len reports how many UIDs are currently interned. Exposed for metrics and
// tests, not part of the correlation logic itself.
func (in *Interner) Len() int {
	return len(in.uidToID)
}

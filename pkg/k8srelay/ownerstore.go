package k8srelay

import (
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/types"
)

// DefaultMaxDeletedOwners bounds the owners.deleted tombstone deque. See
// invariant 5 in SPEC_FULL.md §3.
const DefaultMaxDeletedOwners = 10000

// tombstone remembers both the interned Id and the owning ReplicaSet/Job's
// own UID, since Id alone is not enough to forget the right string from the
// interner when the tombstone expires: the OwnerInfo stored under an Id
// describes that owner's *grandparent*, not the owner itself.
type tombstone struct {
	id  Id
	uid types.UID
}

// OwnerStore holds ReplicaSet/Job metadata keyed by interned Id, plus the
// bounded deletion queue and the reverse index of pods waiting on an owner
// that has not arrived yet.
type OwnerStore struct {
	interner   *Interner
	infos      map[Id]OwnerInfo
	deleted    []tombstone // FIFO; front = oldest tombstone
	waiting    map[Id][]Id
	maxDeleted int
	logger     *zap.Logger
	metrics    *Recorder
}

// NewOwnerStore creates an OwnerStore backed by interner. maxDeleted <= 0
// selects DefaultMaxDeletedOwners.
func NewOwnerStore(interner *Interner, maxDeleted int, logger *zap.Logger, metrics *Recorder) *OwnerStore {
	if maxDeleted <= 0 {
		maxDeleted = DefaultMaxDeletedOwners
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OwnerStore{
		interner:   interner,
		infos:      make(map[Id]OwnerInfo),
		waiting:    make(map[Id][]Id),
		maxDeleted: maxDeleted,
		logger:     logger,
		metrics:    metrics,
	}
}

// Get returns the stored OwnerInfo for id, if any.
func (s *OwnerStore) Get(id Id) (OwnerInfo, bool) {
	info, ok := s.infos[id]
	return info, ok
}

// AddWaiter registers podID as waiting on ownerID.
func (s *OwnerStore) AddWaiter(ownerID, podID Id) {
	s.waiting[ownerID] = append(s.waiting[ownerID], podID)
	if s.metrics != nil {
		s.metrics.SetOwnersWaiting(len(s.waiting))
	}
}

// Upsert interns uid, merges info into any existing record (inserting if
// absent), and returns the resolved OwnerInfo along with the Ids of any pods
// that were waiting on this owner. The caller (the Correlator) is
// responsible for re-evaluating each waiting pod; Upsert only drains the
// waiting list once it hands the Ids back.
func (s *OwnerStore) Upsert(uid types.UID, info OwnerInfo) (id Id, resolved OwnerInfo, waitingPods []Id) {
	id = s.interner.Intern(uid)

	if existing, ok := s.infos[id]; ok {
		resolved = existing.merge(info)
	} else {
		resolved = info
	}
	s.infos[id] = resolved

	waitingPods = s.waiting[id]
	delete(s.waiting, id)
	if s.metrics != nil {
		s.metrics.SetOwnersWaiting(len(s.waiting))
	}

	return id, resolved, waitingPods
}

// Delete tombstones the owner identified by uid. If the Id is unknown the
// UID is simply forgotten. Otherwise it is appended to the deletion deque;
// once the deque exceeds maxDeleted the oldest tombstone is purged from both
// infos and the interner. A freshly tombstoned owner is not removed
// immediately, giving in-flight pod events a grace window to still resolve
// against it — see SPEC_FULL.md §4.2.
//
// A duplicate Delete for an Id already in the deque is tolerated: it is
// appended again, matching the source's behavior verbatim (see DESIGN.md,
// "tombstone re-upsert" decision) rather than deduplicating.
func (s *OwnerStore) Delete(uid types.UID) {
	id := s.interner.Intern(uid)

	if _, ok := s.infos[id]; !ok {
		s.interner.Forget(uid)
		return
	}

	s.deleted = append(s.deleted, tombstone{id: id, uid: uid})
	if s.metrics != nil {
		s.metrics.SetOwnersDeletedPending(len(s.deleted))
	}
	if len(s.deleted) <= s.maxDeleted {
		return
	}

	expired := s.deleted[0]
	s.deleted = s.deleted[1:]
	if s.metrics != nil {
		s.metrics.SetOwnersDeletedPending(len(s.deleted))
	}

	if _, ok := s.infos[expired.id]; !ok {
		s.logger.Info("owner removed before its tombstone expired", zap.Uint64("id", uint64(expired.id)))
		return
	}
	s.interner.Forget(expired.uid)
	delete(s.infos, expired.id)
}

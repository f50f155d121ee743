package k8srelay

import (
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/types"
)

// DefaultMaxWaitingPods bounds the pods.waiting set. Exceeding it means the
// session must force a resync rather than let waiting state grow without
// bound (SPEC_FULL.md §3, invariant 4).
const DefaultMaxWaitingPods = 10000

// Correlator holds the stateless rules that, given a Pod and its
// (maybe-resolved) owner chain, decide which owner to attribute and whether
// to emit a record. It owns the Interner, Owner Store and Pod Store for one
// session and is the only component that mutates them.
type Correlator struct {
	interner *Interner
	owners   *OwnerStore
	pods     *PodStore
	writer   Writer

	maxWaitingPods int

	logger  *zap.Logger
	metrics *Recorder
}

// CorrelatorConfig configures the two safety bounds a Correlator enforces.
// Zero values select the package defaults.
type CorrelatorConfig struct {
	MaxWaitingPods   int
	MaxDeletedOwners int
}

// NewCorrelator creates a Correlator with its own private Interner, Owner
// Store and Pod Store, all scoped to one session.
func NewCorrelator(writer Writer, cfg CorrelatorConfig, logger *zap.Logger, metrics *Recorder) *Correlator {
	if cfg.MaxWaitingPods <= 0 {
		cfg.MaxWaitingPods = DefaultMaxWaitingPods
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	interner := NewInterner()
	return &Correlator{
		interner:       interner,
		owners:         NewOwnerStore(interner, cfg.MaxDeletedOwners, logger, metrics),
		pods:           NewPodStore(),
		writer:         writer,
		maxWaitingPods: cfg.MaxWaitingPods,
		logger:         logger,
		metrics:        metrics,
	}
}

// NeedRestart reports whether the waiting set has grown past the safety
// threshold and the session loop must force a resync.
func (c *Correlator) NeedRestart() bool {
	return c.pods.WaitingCount() > c.maxWaitingPods
}

// PodAddedOrModified implements SPEC_FULL.md §4.3 "Pod added or modified".
func (c *Correlator) PodAddedOrModified(pod PodInfo) error {
	if pod.UID == "" {
		c.logger.Warn("pod info without uid, dropping")
		return nil
	}

	id := c.interner.Intern(pod.UID)
	merged := c.pods.Upsert(id, pod)

	if c.pods.IsLive(id) {
		c.logger.Debug("pod already live, re-emitting containers only", zap.String("uid", string(pod.UID)))
		return c.sendPodContainers(merged)
	}

	if merged.IP == "" {
		c.logger.Debug("pod has no ip yet, waiting for a later modify", zap.String("uid", string(pod.UID)))
		return nil
	}

	if merged.Owner == nil {
		if err := c.sendPodNewNoOwner(merged); err != nil {
			return err
		}
		c.pods.MarkLive(id)
		return nil
	}

	if merged.Owner.Kind != KindReplicaSet && merged.Owner.Kind != KindJob {
		if err := c.sendPodNew(merged, *merged.Owner); err != nil {
			return err
		}
		c.pods.MarkLive(id)
		return nil
	}

	ownerID := c.interner.Intern(merged.Owner.UID)
	ownerInfo, ok := c.owners.Get(ownerID)
	if !ok {
		c.owners.AddWaiter(ownerID, id)
		c.pods.MarkWaiting(id)
		if c.metrics != nil {
			c.metrics.SetPodsWaiting(c.pods.WaitingCount())
		}
		c.logger.Debug("pod is waiting for its owner", zap.String("uid", string(pod.UID)), zap.String("owner_uid", string(merged.Owner.UID)))
		return nil
	}

	resolved := twoHop(*merged.Owner, ownerInfo)
	if err := c.sendPodNew(merged, resolved); err != nil {
		return err
	}
	c.pods.MarkLive(id)
	return nil
}

// PodDeleted implements SPEC_FULL.md §4.3 "Pod deleted".
func (c *Correlator) PodDeleted(uid types.UID) error {
	if uid == "" {
		c.logger.Warn("pod delete event without uid, dropping")
		return nil
	}

	id := c.interner.Intern(uid)
	var err error
	if c.pods.IsLive(id) {
		if err = c.writer.PodDelete(uid); err == nil && c.metrics != nil {
			c.metrics.RecordEmitted("pod_delete")
		}
	}
	c.pods.Remove(id)
	c.interner.Forget(uid)
	if c.metrics != nil {
		c.metrics.SetPodsWaiting(c.pods.WaitingCount())
	}
	return err
}

// ReplicaSetAddedOrModified implements SPEC_FULL.md §4.4 "ReplicaSet
// events": forwards to owner_upsert then resolves any pods that were
// waiting on this ReplicaSet's Id.
func (c *Correlator) ReplicaSetAddedOrModified(rs ReplicaSetInfo) error {
	if rs.UID == "" {
		c.logger.Warn("replicaset info without uid, dropping")
		return nil
	}
	return c.ownerResolved(rs.UID, rs.Owner)
}

// ReplicaSetDeleted implements SPEC_FULL.md §4.4.
func (c *Correlator) ReplicaSetDeleted(rs ReplicaSetInfo) error {
	if rs.UID == "" {
		c.logger.Warn("replicaset info without uid, dropping")
		return nil
	}
	c.owners.Delete(rs.UID)
	return nil
}

// JobAddedOrModified implements SPEC_FULL.md §4.4.
func (c *Correlator) JobAddedOrModified(job JobInfo) error {
	if job.UID == "" {
		c.logger.Warn("job info without uid, dropping")
		return nil
	}
	return c.ownerResolved(job.UID, job.Owner)
}

// JobDeleted implements SPEC_FULL.md §4.4.
func (c *Correlator) JobDeleted(job JobInfo) error {
	if job.UID == "" {
		c.logger.Warn("job info without uid, dropping")
		return nil
	}
	c.owners.Delete(job.UID)
	return nil
}

// ownerResolved implements the "Owner resolved" callback of SPEC_FULL.md
// §4.3: upsert the owner, then re-evaluate every pod that had been waiting
// on it.
func (c *Correlator) ownerResolved(uid types.UID, grandparent OwnerInfo) error {
	ownerID, resolvedOwner, waitingPods := c.owners.Upsert(uid, grandparent)

	for _, podID := range waitingPods {
		pod, ok := c.pods.Get(podID)
		if !ok {
			// Pod was deleted while waiting.
			continue
		}
		if pod.Owner == nil {
			continue
		}
		currentOwnerID := c.interner.Intern(pod.Owner.UID)
		if currentOwnerID != ownerID {
			// Pod has since been re-parented away from this owner.
			continue
		}

		resolved := twoHop(*pod.Owner, resolvedOwner)
		if err := c.sendPodNew(pod, resolved); err != nil {
			return err
		}
		c.pods.MarkLive(podID)
	}
	if c.metrics != nil {
		c.metrics.SetPodsWaiting(c.pods.WaitingCount())
	}
	return nil
}

// twoHop implements the two-hop rule of SPEC_FULL.md §4.3 step 7: a pod
// owned by a ReplicaSet reports the ReplicaSet's Deployment when present; a
// pod owned by a Job reports the Job's CronJob when present. Otherwise the
// pod's own immediate owner is reported verbatim.
func twoHop(immediate, grandparent OwnerInfo) OwnerInfo {
	switch {
	case immediate.Kind == KindReplicaSet && grandparent.Kind == KindDeployment:
		return grandparent
	case immediate.Kind == KindJob && grandparent.Kind == KindCronJob:
		return grandparent
	default:
		return immediate
	}
}

func (c *Correlator) sendPodNew(pod PodInfo, owner OwnerInfo) error {
	if err := c.writer.PodNewWithName(
		pod.UID,
		ParseIPv4BE(pod.IP),
		owner.Name,
		pod.Name,
		owner.Kind,
		owner.UID,
		pod.IsHostNetwork,
		pod.Namespace,
		pod.Version,
	); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordEmitted("pod_new_with_name")
	}
	return c.sendPodContainers(pod)
}

func (c *Correlator) sendPodNewNoOwner(pod PodInfo) error {
	if err := c.writer.PodNewWithName(
		pod.UID,
		ParseIPv4BE(pod.IP),
		pod.Name,
		pod.Name,
		KindNoOwner,
		"",
		pod.IsHostNetwork,
		pod.Namespace,
		pod.Version,
	); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordEmitted("pod_new_with_name")
	}
	return c.sendPodContainers(pod)
}

func (c *Correlator) sendPodContainers(pod PodInfo) error {
	for _, container := range pod.Containers {
		if err := c.writer.PodContainer(pod.UID, container.ID, container.Name, container.Image); err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.RecordEmitted("pod_container")
		}
	}
	return nil
}

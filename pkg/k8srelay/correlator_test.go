package k8srelay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/types"
)

type recordedContainer struct {
	podUID types.UID
	id     string
}

type fakeWriter struct {
	podsNew   []string
	containers []recordedContainer
	podsDel   []string
	flushes   int
	resets    int
	failNext  error
}

func (f *fakeWriter) PodNewWithName(uid types.UID, ipv4BE uint32, dnsName, podName string, ownerKind OwnerKind, ownerUID types.UID, hostNetwork bool, namespace, version string) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.podsNew = append(f.podsNew, string(uid)+"|"+dnsName+"|"+ownerKind.String())
	return nil
}

func (f *fakeWriter) PodContainer(podUID types.UID, containerID, name, image string) error {
	f.containers = append(f.containers, recordedContainer{podUID: podUID, id: containerID})
	return nil
}

func (f *fakeWriter) PodDelete(uid types.UID) error {
	f.podsDel = append(f.podsDel, string(uid))
	return nil
}

func (f *fakeWriter) Flush() error {
	f.flushes++
	return nil
}

func (f *fakeWriter) Reset() {
	f.resets++
}

func newTestCorrelator(w Writer) *Correlator {
	return NewCorrelator(w, CorrelatorConfig{}, nil, nil)
}

func TestCorrelator_HappyPathOwnerArrivesFirst(t *testing.T) {
	w := &fakeWriter{}
	c := newTestCorrelator(w)

	require.NoError(t, c.ReplicaSetAddedOrModified(ReplicaSetInfo{
		UID:   types.UID("rs-1"),
		Owner: OwnerInfo{UID: types.UID("deploy-1"), Name: "checkout", Kind: KindDeployment},
	}))

	require.NoError(t, c.PodAddedOrModified(PodInfo{
		UID:  types.UID("pod-1"),
		IP:   "10.0.0.5",
		Name: "checkout-abc",
		Owner: &OwnerInfo{
			UID:  types.UID("rs-1"),
			Name: "checkout-rs",
			Kind: KindReplicaSet,
		},
	}))

	require.Len(t, w.podsNew, 1)
	assert.Contains(t, w.podsNew[0], "checkout") // two-hop resolved to the Deployment's name
	assert.True(t, c.pods.IsLive(c.interner.Intern(types.UID("pod-1"))))
}

func TestCorrelator_PodBeforeReplicaSetWaitsThenResolves(t *testing.T) {
	w := &fakeWriter{}
	c := newTestCorrelator(w)

	require.NoError(t, c.PodAddedOrModified(PodInfo{
		UID:  types.UID("pod-1"),
		IP:   "10.0.0.5",
		Name: "checkout-abc",
		Owner: &OwnerInfo{
			UID:  types.UID("rs-1"),
			Name: "checkout-rs",
			Kind: KindReplicaSet,
		},
	}))
	assert.Empty(t, w.podsNew, "pod must wait until its owner resolves")
	assert.Equal(t, 1, c.pods.WaitingCount())

	require.NoError(t, c.ReplicaSetAddedOrModified(ReplicaSetInfo{
		UID:   types.UID("rs-1"),
		Owner: OwnerInfo{UID: types.UID("deploy-1"), Name: "checkout", Kind: KindDeployment},
	}))

	require.Len(t, w.podsNew, 1)
	assert.Equal(t, 0, c.pods.WaitingCount())
}

func TestCorrelator_TwoHopJobToCronJob(t *testing.T) {
	w := &fakeWriter{}
	c := newTestCorrelator(w)

	require.NoError(t, c.JobAddedOrModified(JobInfo{
		UID:   types.UID("job-1"),
		Owner: OwnerInfo{UID: types.UID("cron-1"), Name: "nightly-cleanup", Kind: KindCronJob},
	}))

	require.NoError(t, c.PodAddedOrModified(PodInfo{
		UID:  types.UID("pod-1"),
		IP:   "10.0.0.5",
		Name: "nightly-cleanup-xyz",
		Owner: &OwnerInfo{
			UID:  types.UID("job-1"),
			Name: "nightly-cleanup-job",
			Kind: KindJob,
		},
	}))

	require.Len(t, w.podsNew, 1)
	assert.Contains(t, w.podsNew[0], "nightly-cleanup|")
}

func TestCorrelator_JobWithNoCronJobParentReportsJobItself(t *testing.T) {
	w := &fakeWriter{}
	c := newTestCorrelator(w)

	require.NoError(t, c.JobAddedOrModified(JobInfo{
		UID:   types.UID("job-1"),
		Owner: OwnerInfo{}, // standalone Job, no CronJob parent
	}))

	require.NoError(t, c.PodAddedOrModified(PodInfo{
		UID:  types.UID("pod-1"),
		IP:   "10.0.0.5",
		Name: "manual-job-xyz",
		Owner: &OwnerInfo{
			UID:  types.UID("job-1"),
			Name: "manual-job",
			Kind: KindJob,
		},
	}))

	require.Len(t, w.podsNew, 1)
	assert.Contains(t, w.podsNew[0], "manual-job|Job")
}

func TestCorrelator_RepentingWhileWaitingSkipsStaleOwner(t *testing.T) {
	w := &fakeWriter{}
	c := newTestCorrelator(w)

	require.NoError(t, c.PodAddedOrModified(PodInfo{
		UID:  types.UID("pod-1"),
		IP:   "10.0.0.5",
		Name: "pod-1",
		Owner: &OwnerInfo{
			UID:  types.UID("rs-old"),
			Name: "rs-old",
			Kind: KindReplicaSet,
		},
	}))
	assert.Equal(t, 1, c.pods.WaitingCount())

	// Pod is re-parented to a different ReplicaSet before rs-old resolves.
	require.NoError(t, c.PodAddedOrModified(PodInfo{
		UID:  types.UID("pod-1"),
		Owner: &OwnerInfo{
			UID:  types.UID("rs-new"),
			Name: "rs-new",
			Kind: KindReplicaSet,
		},
	}))

	require.NoError(t, c.ReplicaSetAddedOrModified(ReplicaSetInfo{
		UID:   types.UID("rs-old"),
		Owner: OwnerInfo{UID: types.UID("deploy-old"), Name: "deploy-old", Kind: KindDeployment},
	}))
	assert.Empty(t, w.podsNew, "resolving the stale owner must not emit for a pod that has since been re-parented")

	require.NoError(t, c.ReplicaSetAddedOrModified(ReplicaSetInfo{
		UID:   types.UID("rs-new"),
		Owner: OwnerInfo{UID: types.UID("deploy-new"), Name: "deploy-new", Kind: KindDeployment},
	}))
	require.Len(t, w.podsNew, 1)
	assert.Contains(t, w.podsNew[0], "deploy-new")
}

func TestCorrelator_OverflowSignalsNeedRestart(t *testing.T) {
	w := &fakeWriter{}
	c := NewCorrelator(w, CorrelatorConfig{MaxWaitingPods: 2}, nil, nil)

	for i, uid := range []string{"pod-1", "pod-2", "pod-3"} {
		require.NoError(t, c.PodAddedOrModified(PodInfo{
			UID: types.UID(uid),
			IP:  "10.0.0.1",
			Owner: &OwnerInfo{
				UID:  types.UID("rs-missing"),
				Kind: KindReplicaSet,
			},
		}))
		if i < 2 {
			assert.False(t, c.NeedRestart(), "waiting count %d must not exceed MaxWaitingPods yet", i+1)
		}
	}

	assert.True(t, c.NeedRestart(), "the (MaxWaitingPods+1)-th waiting pod must trigger a restart")
}

func TestCorrelator_PodWithNoIPYetDoesNotEmit(t *testing.T) {
	w := &fakeWriter{}
	c := newTestCorrelator(w)

	require.NoError(t, c.PodAddedOrModified(PodInfo{
		UID:  types.UID("pod-1"),
		Name: "pod-1",
	}))

	assert.Empty(t, w.podsNew)
	assert.False(t, c.pods.IsLive(c.interner.Intern(types.UID("pod-1"))))
	assert.False(t, c.pods.IsWaiting(c.interner.Intern(types.UID("pod-1"))))
}

func TestCorrelator_PodWithNoOwnerEmitsImmediately(t *testing.T) {
	w := &fakeWriter{}
	c := newTestCorrelator(w)

	require.NoError(t, c.PodAddedOrModified(PodInfo{
		UID:  types.UID("pod-1"),
		IP:   "10.0.0.9",
		Name: "standalone-pod",
	}))

	require.Len(t, w.podsNew, 1)
	assert.Contains(t, w.podsNew[0], "NoOwner")
}

func TestCorrelator_PodDeleteEmitsOnlyIfLive(t *testing.T) {
	w := &fakeWriter{}
	c := newTestCorrelator(w)

	require.NoError(t, c.PodDeleted(types.UID("never-seen")))
	assert.Empty(t, w.podsDel)

	require.NoError(t, c.PodAddedOrModified(PodInfo{UID: types.UID("pod-1"), IP: "10.0.0.1"}))
	require.NoError(t, c.PodDeleted(types.UID("pod-1")))
	assert.Equal(t, []string{"pod-1"}, w.podsDel)
}

func TestCorrelator_EmptyUIDEventsAreDroppedNotErrored(t *testing.T) {
	w := &fakeWriter{}
	c := newTestCorrelator(w)

	assert.NoError(t, c.PodAddedOrModified(PodInfo{}))
	assert.NoError(t, c.PodDeleted(""))
	assert.NoError(t, c.ReplicaSetAddedOrModified(ReplicaSetInfo{}))
	assert.NoError(t, c.JobAddedOrModified(JobInfo{}))
	assert.NoError(t, c.ReplicaSetDeleted(ReplicaSetInfo{}))
	assert.NoError(t, c.JobDeleted(JobInfo{}))
	assert.Empty(t, w.podsNew)
}

// TestCorrelator_ReplicaSetDeletedTombstonesOwner exercises the delete-then-
// grace-window-resolve sequence end to end: a ReplicaSet's delete event
// tombstones it in the owner store (SPEC_FULL.md §4.2), but a pod arriving
// while the tombstone is still within the deletion deque must still resolve
// against it rather than being parked as waiting.
func TestCorrelator_ReplicaSetDeletedTombstonesOwner(t *testing.T) {
	w := &fakeWriter{}
	c := newTestCorrelator(w)

	require.NoError(t, c.ReplicaSetAddedOrModified(ReplicaSetInfo{
		UID:   types.UID("rs-a"),
		Owner: OwnerInfo{UID: types.UID("deploy-a"), Name: "deploy-a", Kind: KindDeployment},
	}))
	require.NoError(t, c.ReplicaSetDeleted(ReplicaSetInfo{UID: types.UID("rs-a")}))

	require.NoError(t, c.PodAddedOrModified(PodInfo{
		UID:  types.UID("pod-1"),
		IP:   "10.0.0.5",
		Name: "pod-1",
		Owner: &OwnerInfo{
			UID:  types.UID("rs-a"),
			Name: "rs-a",
			Kind: KindReplicaSet,
		},
	}))

	require.Len(t, w.podsNew, 1, "a pod arriving within the tombstone's grace window must resolve immediately, not wait")
	assert.Contains(t, w.podsNew[0], "deploy-a")
	assert.Equal(t, 0, c.pods.WaitingCount())
}

// TestCorrelator_JobDeletedTombstonesOwner mirrors
// TestCorrelator_ReplicaSetDeletedTombstonesOwner for the Job path.
func TestCorrelator_JobDeletedTombstonesOwner(t *testing.T) {
	w := &fakeWriter{}
	c := newTestCorrelator(w)

	require.NoError(t, c.JobAddedOrModified(JobInfo{
		UID:   types.UID("job-1"),
		Owner: OwnerInfo{UID: types.UID("cron-1"), Name: "nightly-cleanup", Kind: KindCronJob},
	}))
	require.NoError(t, c.JobDeleted(JobInfo{UID: types.UID("job-1")}))

	require.NoError(t, c.PodAddedOrModified(PodInfo{
		UID:  types.UID("pod-1"),
		IP:   "10.0.0.5",
		Name: "nightly-cleanup-xyz",
		Owner: &OwnerInfo{
			UID:  types.UID("job-1"),
			Name: "nightly-cleanup-job",
			Kind: KindJob,
		},
	}))

	require.Len(t, w.podsNew, 1, "a pod arriving within the tombstone's grace window must resolve immediately, not wait")
	assert.Contains(t, w.podsNew[0], "nightly-cleanup|")
	assert.Equal(t, 0, c.pods.WaitingCount())
}

// TestCorrelator_ReplicaSetDeletedPurgeExpiresGraceWindow shows the other
// side of the grace window: once a tombstone is pushed out of the bounded
// deletion deque (SPEC_FULL.md §3 invariant 5), a pod arriving afterward can
// no longer resolve against it and must be parked as waiting instead.
func TestCorrelator_ReplicaSetDeletedPurgeExpiresGraceWindow(t *testing.T) {
	w := &fakeWriter{}
	c := NewCorrelator(w, CorrelatorConfig{MaxDeletedOwners: 1}, nil, nil)

	require.NoError(t, c.ReplicaSetAddedOrModified(ReplicaSetInfo{
		UID:   types.UID("rs-a"),
		Owner: OwnerInfo{UID: types.UID("deploy-a"), Name: "deploy-a", Kind: KindDeployment},
	}))
	require.NoError(t, c.ReplicaSetAddedOrModified(ReplicaSetInfo{
		UID:   types.UID("rs-b"),
		Owner: OwnerInfo{UID: types.UID("deploy-b"), Name: "deploy-b", Kind: KindDeployment},
	}))

	require.NoError(t, c.ReplicaSetDeleted(ReplicaSetInfo{UID: types.UID("rs-a")}))
	// Pushes the deque past MaxDeletedOwners=1, purging rs-a's tombstone.
	require.NoError(t, c.ReplicaSetDeleted(ReplicaSetInfo{UID: types.UID("rs-b")}))

	require.NoError(t, c.PodAddedOrModified(PodInfo{
		UID:  types.UID("pod-1"),
		IP:   "10.0.0.5",
		Name: "pod-1",
		Owner: &OwnerInfo{
			UID:  types.UID("rs-a"),
			Name: "rs-a",
			Kind: KindReplicaSet,
		},
	}))

	assert.Empty(t, w.podsNew, "a purged tombstone must not resolve a later pod")
	assert.Equal(t, 1, c.pods.WaitingCount())
}

// Package k8srelay maintains the cross-object parent/child state needed to
// answer "what is the effective workload owner of this Pod?" for a single
// watcher streaming session, and emits a flattened, ordered sequence of
// pod-lifecycle records to a downstream writer.
package k8srelay

import (
	"k8s.io/apimachinery/pkg/types"
)

// Id is a compact, session-local, monotonically increasing handle assigned
// to a Kubernetes UID by the Interner. Ids are never recycled within a
// session: reusing one could attach a fresh object to a stale waiter list.
type Id uint64

// OwnerKind enumerates the Kubernetes controller kinds this package
// understands. Deployment and CronJob only ever appear as the "owner" field
// nested inside a ReplicaSet or Job record, never stored as owners in their
// own right.
type OwnerKind uint8

const (
	// KindNoOwner is the sentinel used both for "the pod has no owner" and
	// for "the watcher reported an owner kind we don't enumerate".
	KindNoOwner OwnerKind = iota
	KindPod
	KindReplicaSet
	KindJob
	KindDeployment
	KindCronJob
)

func (k OwnerKind) String() string {
	switch k {
	case KindPod:
		return "Pod"
	case KindReplicaSet:
		return "ReplicaSet"
	case KindJob:
		return "Job"
	case KindDeployment:
		return "Deployment"
	case KindCronJob:
		return "CronJob"
	default:
		return "NoOwner"
	}
}

// ParseOwnerKind maps a watcher-reported kind string to an OwnerKind. Kind
// strings this package does not enumerate (StatefulSet, DaemonSet, an empty
// string, or anything else) map to KindNoOwner rather than being rejected;
// the pod carrying such an owner is still emitted, per the ambient error
// policy of "map to NoOwner-equivalent, do not drop the event".
func ParseOwnerKind(kind string) OwnerKind {
	switch kind {
	case "Pod":
		return KindPod
	case "ReplicaSet":
		return KindReplicaSet
	case "Job":
		return KindJob
	case "Deployment":
		return KindDeployment
	case "CronJob":
		return KindCronJob
	default:
		return KindNoOwner
	}
}

// OwnerInfo describes an owner reference. It plays two distinct roles in
// this package, exactly as in the source it was ported from: as the
// immediate owner attached to a PodInfo (uid/name/kind of the ReplicaSet,
// Job, or whatever controls the pod), and as the value stored in the Owner
// Store keyed by a ReplicaSet/Job's interned Id (in which role its fields
// describe that ReplicaSet/Job's own grandparent — a Deployment, CronJob,
// or anything else). The grandparent's UID is carried as a plain string and
// is never interned: two-hop resolution never looks it up by Id.
type OwnerInfo struct {
	UID  types.UID
	Name string
	Kind OwnerKind
}

// merge overlays non-zero/non-empty fields of other onto o, matching the
// watcher's partial-update (MODIFY) semantics. Because KindNoOwner is also
// OwnerKind's zero value, an incoming record that legitimately reports "no
// owner" is indistinguishable from "kind field left unset" and will not
// overwrite a previously known kind. This mirrors the ambiguity inherent to
// the source's protobuf field-presence-free MergeFrom and is intentional,
// not a bug: see SPEC_FULL.md open-question notes.
func (o OwnerInfo) merge(other OwnerInfo) OwnerInfo {
	merged := o
	if other.UID != "" {
		merged.UID = other.UID
	}
	if other.Name != "" {
		merged.Name = other.Name
	}
	if other.Kind != KindNoOwner {
		merged.Kind = other.Kind
	}
	return merged
}

// ContainerInfo describes one container observed inside a pod.
type ContainerInfo struct {
	ID    string
	Name  string
	Image string
}

// PodInfo is the watcher's view of a single Pod.
type PodInfo struct {
	UID           types.UID
	IP            string // dotted-decimal IPv4; empty while the pod is still starting up
	Name          string
	Namespace     string
	Version       string
	IsHostNetwork bool
	Owner         *OwnerInfo // immediate owner; nil if the pod has none
	Containers    []ContainerInfo
}

// merge overlays other onto p following the same non-empty-wins rule as
// OwnerInfo.merge, except for Containers: repeated fields are appended, not
// replaced, so that a status-only MODIFY carrying no container list never
// erases containers learned from an earlier event.
func (p PodInfo) merge(other PodInfo) PodInfo {
	merged := p
	if other.IP != "" {
		merged.IP = other.IP
	}
	if other.Name != "" {
		merged.Name = other.Name
	}
	if other.Namespace != "" {
		merged.Namespace = other.Namespace
	}
	if other.Version != "" {
		merged.Version = other.Version
	}
	if other.IsHostNetwork {
		merged.IsHostNetwork = other.IsHostNetwork
	}
	if other.Owner != nil {
		if merged.Owner == nil {
			owner := *other.Owner
			merged.Owner = &owner
		} else {
			mergedOwner := merged.Owner.merge(*other.Owner)
			merged.Owner = &mergedOwner
		}
	}
	if len(other.Containers) > 0 {
		merged.Containers = append(append([]ContainerInfo{}, merged.Containers...), other.Containers...)
	}
	return merged
}

// ReplicaSetInfo is the watcher's view of a single ReplicaSet: its own UID
// and the (possibly absent) grandparent that controls it, usually a
// Deployment.
type ReplicaSetInfo struct {
	UID   types.UID
	Owner OwnerInfo
}

// JobInfo is the watcher's view of a single Job: its own UID and the
// (possibly absent) grandparent that controls it, usually a CronJob.
type JobInfo struct {
	UID   types.UID
	Owner OwnerInfo
}

// InfoType selects which of Info's payload fields is populated.
type InfoType uint8

const (
	InfoTypePod InfoType = iota
	InfoTypeReplicaSet
	InfoTypeJob
)

// EventKind mirrors the watcher's ADDED/MODIFIED/DELETED/ERROR event type.
// EventError carries no payload; the session loop logs and ignores it.
type EventKind uint8

const (
	EventAdded EventKind = iota
	EventModified
	EventDeleted
	EventError
)

// Info is the envelope the watcher sends over the Collect stream: exactly
// one of Pod, ReplicaSet or Job is populated, selected by Type.
type Info struct {
	Type       InfoType
	Event      EventKind
	Pod        *PodInfo
	ReplicaSet *ReplicaSetInfo
	Job        *JobInfo
}

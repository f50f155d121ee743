package server

import (
	"google.golang.org/grpc"
)

// WatchEventType mirrors the watcher's ADDED/MODIFIED/DELETED/ERROR
// notification, hand-declared the same way pkg/api's streaming messages
// are: no protoc-generated code, plain Go structs with JSON tags.
type WatchEventType int32

const (
	WatchEventAdded WatchEventType = iota
	WatchEventModified
	WatchEventDeleted
	WatchEventError
)

// WatchObjectKind selects which of PodPayload/ReplicaSetPayload/JobPayload
// is populated on a WatchEvent.
type WatchObjectKind int32

const (
	WatchObjectPod WatchObjectKind = iota
	WatchObjectReplicaSet
	WatchObjectJob
)

// OwnerRef is the wire shape of an owner reference, carried both as a Pod's
// immediate owner and as a ReplicaSet/Job's grandparent.
type OwnerRef struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// ContainerRef is the wire shape of one container observed inside a pod.
type ContainerRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// PodPayload is the wire shape of a Pod ADDED/MODIFIED/DELETED event.
type PodPayload struct {
	UID           string         `json:"uid"`
	IP            string         `json:"ip"`
	Name          string         `json:"name"`
	Namespace     string         `json:"namespace"`
	Version       string         `json:"version"`
	IsHostNetwork bool           `json:"is_host_network"`
	Owner         *OwnerRef      `json:"owner,omitempty"`
	Containers    []ContainerRef `json:"containers,omitempty"`
}

// ReplicaSetPayload is the wire shape of a ReplicaSet ADDED/MODIFIED/DELETED
// event.
type ReplicaSetPayload struct {
	UID   string   `json:"uid"`
	Owner OwnerRef `json:"owner"`
}

// JobPayload is the wire shape of a Job ADDED/MODIFIED/DELETED event.
type JobPayload struct {
	UID   string   `json:"uid"`
	Owner OwnerRef `json:"owner"`
}

// WatchEvent is the single message type the watcher sends on the Collect
// stream, one per Kubernetes object event.
type WatchEvent struct {
	Kind       WatchObjectKind    `json:"kind"`
	Type       WatchEventType     `json:"type"`
	Pod        *PodPayload        `json:"pod,omitempty"`
	ReplicaSet *ReplicaSetPayload `json:"replica_set,omitempty"`
	Job        *JobPayload        `json:"job,omitempty"`
}

// CollectResponse is the single message type the relay sends back on the
// Collect stream. In normal operation the relay never speaks; the sole
// exception is the last-message resync notification (SPEC_FULL.md §4.6).
type CollectResponse struct {
	Resync bool `json:"resync"`
}

// CollectorRelayServer is the hand-declared service interface implemented
// by Server, mirroring pkg/api.TapioCollectorService: no protoc-generated
// stub, a plain Go interface naming the one streaming RPC.
type CollectorRelayServer interface {
	Collect(stream CollectorRelay_CollectServer) error
}

// CollectorRelay_CollectServer is the server side of the bidirectional
// Collect stream, hand-declared the way pkg/api.TapioCollector_StreamEventsServer
// is: Send/Recv plus the embedded grpc.ServerStream a real protoc-generated
// stub would also provide.
type CollectorRelay_CollectServer interface {
	Send(*CollectResponse) error
	Recv() (*WatchEvent, error)
	grpc.ServerStream
}

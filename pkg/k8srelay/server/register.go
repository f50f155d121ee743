package server

import (
	"google.golang.org/grpc"
	"k8s.io/apimachinery/pkg/types"

	"github.com/tapio/k8s-relay/pkg/k8srelay"
)

func toUID(s string) types.UID {
	return types.UID(s)
}

// collectorRelayServiceDesc plays the role a protoc-generated
// _ServiceDesc plays: it lets a hand-declared service register itself on a
// *grpc.Server without a .proto file, the same shortcut pkg/api's streaming
// services take.
var collectorRelayServiceDesc = grpc.ServiceDesc{
	ServiceName: "k8srelay.CollectorRelay",
	HandlerType: (*CollectorRelayServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Collect",
			Handler:       collectHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

func collectHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(CollectorRelayServer).Collect(&collectorRelayCollectServer{stream})
}

type collectorRelayCollectServer struct {
	grpc.ServerStream
}

func (s *collectorRelayCollectServer) Send(resp *CollectResponse) error {
	return s.ServerStream.SendMsg(resp)
}

func (s *collectorRelayCollectServer) Recv() (*WatchEvent, error) {
	event := new(WatchEvent)
	if err := s.ServerStream.RecvMsg(event); err != nil {
		return nil, err
	}
	return event, nil
}

// RegisterCollectorRelayServer registers srv on the gRPC server, mirroring
// the generated RegisterXxxServer function pkg/grpc.Server calls in
// Start().
func RegisterCollectorRelayServer(s *grpc.Server, srv CollectorRelayServer) {
	s.RegisterService(&collectorRelayServiceDesc, srv)
}

// toInfo translates the wire WatchEvent into the core's Info, the one place
// gRPC's wire shapes meet the correlation core's domain types.
func toInfo(event *WatchEvent) *k8srelay.Info {
	info := &k8srelay.Info{
		Type:  watchObjectKindToInfoType(event.Kind),
		Event: watchEventTypeToEventKind(event.Type),
	}
	switch event.Kind {
	case WatchObjectPod:
		if event.Pod != nil {
			pod := toPodInfo(event.Pod)
			info.Pod = &pod
		}
	case WatchObjectReplicaSet:
		if event.ReplicaSet != nil {
			rs := k8srelay.ReplicaSetInfo{
				UID:   toUID(event.ReplicaSet.UID),
				Owner: toOwnerInfo(event.ReplicaSet.Owner),
			}
			info.ReplicaSet = &rs
		}
	case WatchObjectJob:
		if event.Job != nil {
			job := k8srelay.JobInfo{
				UID:   toUID(event.Job.UID),
				Owner: toOwnerInfo(event.Job.Owner),
			}
			info.Job = &job
		}
	}
	return info
}

func watchObjectKindToInfoType(kind WatchObjectKind) k8srelay.InfoType {
	switch kind {
	case WatchObjectReplicaSet:
		return k8srelay.InfoTypeReplicaSet
	case WatchObjectJob:
		return k8srelay.InfoTypeJob
	default:
		return k8srelay.InfoTypePod
	}
}

func watchEventTypeToEventKind(t WatchEventType) k8srelay.EventKind {
	switch t {
	case WatchEventModified:
		return k8srelay.EventModified
	case WatchEventDeleted:
		return k8srelay.EventDeleted
	case WatchEventError:
		return k8srelay.EventError
	default:
		return k8srelay.EventAdded
	}
}

func toPodInfo(p *PodPayload) k8srelay.PodInfo {
	pod := k8srelay.PodInfo{
		UID:           toUID(p.UID),
		IP:            p.IP,
		Name:          p.Name,
		Namespace:     p.Namespace,
		Version:       p.Version,
		IsHostNetwork: p.IsHostNetwork,
	}
	if p.Owner != nil {
		owner := toOwnerInfo(*p.Owner)
		pod.Owner = &owner
	}
	for _, c := range p.Containers {
		pod.Containers = append(pod.Containers, k8srelay.ContainerInfo{
			ID:    c.ID,
			Name:  c.Name,
			Image: c.Image,
		})
	}
	return pod
}

func toOwnerInfo(ref OwnerRef) k8srelay.OwnerInfo {
	return k8srelay.OwnerInfo{
		UID:  toUID(ref.UID),
		Name: ref.Name,
		Kind: k8srelay.ParseOwnerKind(ref.Kind),
	}
}

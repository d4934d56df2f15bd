package adminrpc

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BMDan/RocketSpeed/internal/broker"
	"github.com/BMDan/RocketSpeed/internal/rserrors"
	"github.com/BMDan/RocketSpeed/internal/runtime"
)

// Server owns the gRPC listener and the admin surface's two dependencies
// — the runtime for health and the ControlTower for everything else — the
// same shape as the teacher's grpcserver.Server (runtime + grpc.Server +
// listener), adapted to one admin service instead of one struct field
// per registered service.
type Server struct {
	rt         *runtime.Runtime
	ct         *broker.ControlTower
	grpc       *grpc.Server
	lis        net.Listener
	instanceID string
}

// New constructs an admin server and registers the hand-built
// ServiceDesc against it. instanceID identifies this process in Health
// responses, hostname plus a short random suffix so two processes on the
// same host are still distinguishable.
func New(rt *runtime.Runtime, ct *broker.ControlTower, opts ...grpc.ServerOption) *Server {
	hostname, _ := os.Hostname()
	s := &Server{
		rt:         rt,
		ct:         ct,
		grpc:       grpc.NewServer(opts...),
		instanceID: fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
	}
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func (s *Server) Health(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	status := "ok"
	if err := s.rt.CheckHealth(ctx); err != nil {
		status = "not_serving"
	}
	return structpb.NewStruct(map[string]interface{}{"status": status, "instanceId": s.instanceID})
}

func (s *Server) Logs(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	logs := s.ct.Logs()
	items := make([]interface{}, len(logs))
	for i, l := range logs {
		items[i] = l
	}
	return structpb.NewStruct(map[string]interface{}{"logs": items})
}

func (s *Server) TailSeqno(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ns, topic, err := namespaceTopic(req)
	if err != nil {
		return nil, err
	}
	seqno, found := s.ct.FindTailSeqnoSync(ctx, ns, topic)
	return structpb.NewStruct(map[string]interface{}{
		"found": found,
		"seqno": float64(seqno),
	})
}

func (s *Server) Subscriptions(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	subs := s.ct.Subscriptions()
	items := make([]interface{}, len(subs))
	for i, sub := range subs {
		items[i] = map[string]interface{}{
			"namespace": sub.Namespace,
			"topic":     sub.Topic,
			"client_id": float64(sub.ClientID),
		}
	}
	return structpb.NewStruct(map[string]interface{}{"subscriptions": items})
}

func (s *Server) CacheStat(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	used, capacity := s.ct.CacheStat(ctx)
	return structpb.NewStruct(map[string]interface{}{
		"used_bytes":     float64(used),
		"capacity_bytes": float64(capacity),
	})
}

func (s *Server) CacheSetCapacity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	v, ok := req.Fields["capacity_bytes"]
	if !ok {
		return nil, rserrors.New("adminrpc.CacheSetCapacity", rserrors.InvalidArgument, nil)
	}
	s.ct.SetCacheCapacity(ctx, int64(v.GetNumberValue()))
	return structpb.NewStruct(nil)
}

func (s *Server) CacheClear(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	s.ct.ClearCache(ctx)
	return structpb.NewStruct(nil)
}

func namespaceTopic(req *structpb.Struct) (ns, topic string, err error) {
	nsField, ok := req.Fields["namespace"]
	if !ok {
		return "", "", rserrors.New("adminrpc.namespaceTopic", rserrors.InvalidArgument, nil)
	}
	topicField, ok := req.Fields["topic"]
	if !ok {
		return "", "", rserrors.New("adminrpc.namespaceTopic", rserrors.InvalidArgument, nil)
	}
	return nsField.GetStringValue(), topicField.GetStringValue(), nil
}

package adminrpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BMDan/RocketSpeed/internal/broker"
	cfgpkg "github.com/BMDan/RocketSpeed/internal/config"
	"github.com/BMDan/RocketSpeed/internal/runtime"
	pebblestore "github.com/BMDan/RocketSpeed/internal/storage/pebble"
)

const bufSize = 1 << 20

func dialer(s *grpc.Server) func(context.Context, string) (net.Conn, error) {
	lis := bufconn.Listen(bufSize)
	go func() { _ = s.Serve(lis) }()
	return func(ctx context.Context, _ string) (net.Conn, error) { return lis.Dial() }
}

func newTestServer(t *testing.T) (*Server, *grpc.ClientConn) {
	t.Helper()
	dir := t.TempDir()
	rt, err := runtime.Open(runtime.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	ct := broker.New(broker.Config{NumRooms: 1, ReadersPerRoom: 4, CacheBytesTotal: 1 << 16, DB: rt.DB()})
	t.Cleanup(ct.Stop)

	srv := New(rt, ct)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	conn, err := grpc.DialContext(ctx, "bufnet",
		grpc.WithContextDialer(dialer(srv.grpc)),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return srv, conn
}

func TestHealthOverGRPC(t *testing.T) {
	_, conn := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, _ := structpb.NewStruct(nil)
	resp := &structpb.Struct{}
	require.NoError(t, conn.Invoke(ctx, "/rocketspeed.admin.v1.AdminService/Health", req, resp))
	require.Equal(t, "ok", resp.Fields["status"].GetStringValue())
}

func TestCacheStatAndSetCapacityOverGRPC(t *testing.T) {
	_, conn := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, _ := structpb.NewStruct(map[string]interface{}{"capacity_bytes": float64(4096)})
	resp := &structpb.Struct{}
	require.NoError(t, conn.Invoke(ctx, "/rocketspeed.admin.v1.AdminService/CacheSetCapacity", req, resp))

	stat := &structpb.Struct{}
	require.NoError(t, conn.Invoke(ctx, "/rocketspeed.admin.v1.AdminService/CacheStat", &structpb.Struct{}, stat))
	require.Equal(t, float64(4096), stat.Fields["capacity_bytes"].GetNumberValue())
}

func TestTailSeqnoOverGRPCMissingTopic(t *testing.T) {
	_, conn := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, _ := structpb.NewStruct(map[string]interface{}{"namespace": "ns", "topic": "never-published"})
	resp := &structpb.Struct{}
	require.NoError(t, conn.Invoke(ctx, "/rocketspeed.admin.v1.AdminService/TailSeqno", req, resp))
	require.False(t, resp.Fields["found"].GetBoolValue())
}

package rendezvous

import (
	"context"
	"net"
	"runtime"
	"testing"
	"time"

	mss "github.com/multiformats/go-multistream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-rendezvous/internal/core/eventbus"
	"github.com/dep2p/go-rendezvous/internal/core/identity"
	"github.com/dep2p/go-rendezvous/internal/core/muxer"
	"github.com/dep2p/go-rendezvous/internal/core/muxer/mplex"
	"github.com/dep2p/go-rendezvous/internal/core/muxer/yamux"
	"github.com/dep2p/go-rendezvous/internal/core/security/noise"
	"github.com/dep2p/go-rendezvous/internal/core/upgrader"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

// newTestUpgrader 为给定身份构建升级器
func newTestUpgrader(t *testing.T, id *identity.Identity) *upgrader.Upgrader {
	t.Helper()

	sec, err := noise.New(id.PrivateKey())
	require.NoError(t, err)

	up, err := upgrader.New(upgrader.Config{
		Security: sec,
		Muxers:   []muxer.Transport{yamux.NewTransport(), mplex.NewTransport()},
	})
	require.NoError(t, err)
	return up
}

// startTestPoint 启动测试汇合点，返回监听地址
func startTestPoint(t *testing.T, cfg Config) (*Point, *Store, string) {
	t.Helper()

	id, err := identity.Generate()
	require.NoError(t, err)

	bus := eventbus.NewBus()
	store, err := NewStore(cfg, nil, bus)
	require.NoError(t, err)

	point, err := NewPoint(cfg, id, store, newTestUpgrader(t, id))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = point.Serve(ln)
	}()

	t.Cleanup(func() {
		point.Close()
		store.Close()
	})
	return point, store, ln.Addr().String()
}

// dialTestClient 创建客户端并连接汇合点
func dialTestClient(t *testing.T, addr string, expectPeer types.PeerID) (*ClientConn, types.PeerID) {
	t.Helper()

	id, err := identity.Generate()
	require.NoError(t, err)

	client, err := NewClient(id, newTestUpgrader(t, id))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cc, err := client.Dial(ctx, addr, expectPeer)
	require.NoError(t, err)
	t.Cleanup(func() { cc.Close() })
	return cc, id.PeerID()
}

// TestEndToEnd 测试完整的注册/发现/注销流程
func TestEndToEnd(t *testing.T) {
	point, _, addr := startTestPoint(t, testConfig())
	cc, clientID := dialTestClient(t, addr, point.PeerID())

	ctx := context.Background()
	addrs := []types.Multiaddr{"/ip4/1.2.3.4/tcp/4001"}

	// 注册
	granted, err := cc.Register(ctx, "chat", addrs, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, granted)

	// 发现
	found, cookie, err := cc.Discover(ctx, "chat", nil, 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, clientID, found[0].Peer)
	assert.Equal(t, addrs, found[0].Addrs)
	assert.NotEmpty(t, cookie)

	// 注销
	require.NoError(t, cc.Unregister(ctx, "chat"))

	found, _, err = cc.Discover(ctx, "chat", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, found)
}

// TestRegisterClampOverWire 测试超限 TTL 在线上被钳制而非拒绝
func TestRegisterClampOverWire(t *testing.T) {
	cfg := testConfig()
	point, _, addr := startTestPoint(t, cfg)
	cc, _ := dialTestClient(t, addr, point.PeerID())

	granted, err := cc.Register(context.Background(), "chat",
		[]types.Multiaddr{"/ip4/1.2.3.4/tcp/1"}, cfg.MaxTTL+time.Hour)
	require.NoError(t, err)
	assert.Equal(t, cfg.MaxTTL, granted)
}

// TestRegisterErrorOverWire 测试校验失败映射为协议错误
func TestRegisterErrorOverWire(t *testing.T) {
	point, store, addr := startTestPoint(t, testConfig())
	cc, _ := dialTestClient(t, addr, point.PeerID())

	// 空地址列表
	_, err := cc.Register(context.Background(), "chat", nil, 0)
	assert.ErrorIs(t, err, ErrRegisterFailed)
	assert.Equal(t, 0, store.Len())
}

// TestMalformedStreamIsolation 测试畸形帧只影响本流
func TestMalformedStreamIsolation(t *testing.T) {
	point, _, addr := startTestPoint(t, testConfig())
	cc, _ := dialTestClient(t, addr, point.PeerID())
	ctx := context.Background()

	// 打开流，协商协议后写入垃圾帧
	stream, err := cc.conn.OpenStream(ctx)
	require.NoError(t, err)
	_, err = mss.SelectOneOf([]string{string(ProtocolID)}, stream)
	require.NoError(t, err)
	_, err = stream.Write([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	require.NoError(t, err)
	stream.Close()

	// 同一连接上的后续请求不受影响
	granted, err := cc.Register(ctx, "chat", []types.Multiaddr{"/ip4/1.2.3.4/tcp/1"}, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, granted)
}

// TestRegistrationSurvivesDisconnect 测试默认策略下注册在断连后存活
func TestRegistrationSurvivesDisconnect(t *testing.T) {
	point, store, addr := startTestPoint(t, testConfig())
	cc, _ := dialTestClient(t, addr, point.PeerID())

	_, err := cc.Register(context.Background(), "chat", []types.Multiaddr{"/ip4/1.2.3.4/tcp/1"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, cc.Close())

	// 断连后注册仍在
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, store.Len())
}

// TestDropOnDisconnect 测试断连清除策略
func TestDropOnDisconnect(t *testing.T) {
	cfg := testConfig()
	cfg.DropOnDisconnect = true
	point, store, addr := startTestPoint(t, cfg)
	cc, _ := dialTestClient(t, addr, point.PeerID())

	_, err := cc.Register(context.Background(), "chat", []types.Multiaddr{"/ip4/1.2.3.4/tcp/1"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	require.NoError(t, cc.Close())

	require.Eventually(t, func() bool {
		return store.Len() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

// TestConnGoroutineCleanup 测试连接自然结束后服务端不残留 goroutine
func TestConnGoroutineCleanup(t *testing.T) {
	point, _, addr := startTestPoint(t, testConfig())
	ctx := context.Background()

	// 预热一轮，吸收惰性初始化带来的 goroutine
	warm, _ := dialTestClient(t, addr, point.PeerID())
	_, err := warm.Register(ctx, "warm", []types.Multiaddr{"/ip4/1.2.3.4/tcp/1"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, warm.Close())
	time.Sleep(100 * time.Millisecond)

	base := runtime.NumGoroutine()

	const cycles = 10
	for i := 0; i < cycles; i++ {
		cc, _ := dialTestClient(t, addr, point.PeerID())
		_, err := cc.Register(ctx, "chat", []types.Multiaddr{"/ip4/1.2.3.4/tcp/1"}, time.Minute)
		require.NoError(t, err)
		require.NoError(t, cc.Close())
	}

	// 每轮泄漏一个看护 goroutine 时会明显超出基线
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= base+cycles/2
	}, 3*time.Second, 50*time.Millisecond)
}

// TestDialWrongExpectedPeer 测试身份不符时连接被拒
func TestDialWrongExpectedPeer(t *testing.T) {
	_, _, addr := startTestPoint(t, testConfig())

	other, err := identity.Generate()
	require.NoError(t, err)

	id, err := identity.Generate()
	require.NoError(t, err)
	client, err := NewClient(id, newTestUpgrader(t, id))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = client.Dial(ctx, addr, other.PeerID())
	require.Error(t, err)
}

// TestMultipleClients 测试多客户端互相发现
func TestMultipleClients(t *testing.T) {
	point, _, addr := startTestPoint(t, testConfig())
	ctx := context.Background()

	cc1, id1 := dialTestClient(t, addr, point.PeerID())
	cc2, id2 := dialTestClient(t, addr, point.PeerID())

	_, err := cc1.Register(ctx, "swarm", []types.Multiaddr{"/ip4/1.1.1.1/tcp/1"}, time.Minute)
	require.NoError(t, err)
	_, err = cc2.Register(ctx, "swarm", []types.Multiaddr{"/ip4/2.2.2.2/tcp/2"}, time.Minute)
	require.NoError(t, err)

	found, _, err := cc1.Discover(ctx, "swarm", nil, 0)
	require.NoError(t, err)
	require.Len(t, found, 2)

	peers := map[types.PeerID]bool{found[0].Peer: true, found[1].Peer: true}
	assert.True(t, peers[id1])
	assert.True(t, peers[id2])
}

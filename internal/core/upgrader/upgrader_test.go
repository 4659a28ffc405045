package upgrader

import (
	"context"
	"crypto/rand"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-rendezvous/internal/core/muxer"
	"github.com/dep2p/go-rendezvous/internal/core/muxer/mplex"
	"github.com/dep2p/go-rendezvous/internal/core/muxer/yamux"
	"github.com/dep2p/go-rendezvous/internal/core/security/noise"
	"github.com/dep2p/go-rendezvous/pkg/lib/crypto"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

// newTestUpgrader 创建测试升级器
func newTestUpgrader(t *testing.T, muxers ...muxer.Transport) (*Upgrader, types.PeerID) {
	t.Helper()

	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)

	id, err := crypto.PeerIDFromPrivateKey(priv)
	require.NoError(t, err)

	sec, err := noise.New(priv)
	require.NoError(t, err)

	if len(muxers) == 0 {
		muxers = []muxer.Transport{yamux.NewTransport(), mplex.NewTransport()}
	}

	u, err := New(Config{Security: sec, Muxers: muxers})
	require.NoError(t, err)

	return u, id
}

// upgradePair 在管道两端完成双向升级
func upgradePair(t *testing.T, client, server *Upgrader, expectPeer types.PeerID) (*Conn, *Conn) {
	t.Helper()

	clientSide, serverSide := net.Pipe()

	type result struct {
		conn *Conn
		err  error
	}
	serverCh := make(chan result, 1)

	go func() {
		conn, err := server.Upgrade(context.Background(), serverSide, DirInbound, types.EmptyPeerID)
		serverCh <- result{conn, err}
	}()

	clientConn, err := client.Upgrade(context.Background(), clientSide, DirOutbound, expectPeer)
	require.NoError(t, err)

	serverRes := <-serverCh
	require.NoError(t, serverRes.err)

	t.Cleanup(func() {
		clientConn.Close()
		serverRes.conn.Close()
	})
	return clientConn, serverRes.conn
}

// TestUpgrade 测试完整升级流程
func TestUpgrade(t *testing.T) {
	client, clientID := newTestUpgrader(t)
	server, serverID := newTestUpgrader(t)

	clientConn, serverConn := upgradePair(t, client, server, serverID)

	assert.Equal(t, serverID, clientConn.RemotePeer())
	assert.Equal(t, clientID, serverConn.RemotePeer())
	assert.Equal(t, noise.ProtocolID, clientConn.Security())
	assert.Equal(t, yamux.ProtocolID, clientConn.MuxerScheme())
	assert.Equal(t, yamux.ProtocolID, serverConn.MuxerScheme())
}

// TestUpgradeStreamEcho 测试升级后流的数据传输
func TestUpgradeStreamEcho(t *testing.T) {
	client, _ := newTestUpgrader(t)
	server, serverID := newTestUpgrader(t)

	clientConn, serverConn := upgradePair(t, client, server, serverID)

	echoCh := make(chan error, 1)
	go func() {
		stream, err := serverConn.AcceptStream()
		if err != nil {
			echoCh <- err
			return
		}
		defer stream.Close()

		buf := make([]byte, 5)
		if _, err := stream.Read(buf); err != nil {
			echoCh <- err
			return
		}
		_, err = stream.Write(buf)
		echoCh <- err
	}()

	stream, err := clientConn.OpenStream(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	_, err = stream.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), buf)

	require.NoError(t, <-echoCh)
}

// TestMuxerFallback 测试只支持 mplex 的客户端协商出 mplex
func TestMuxerFallback(t *testing.T) {
	client, _ := newTestUpgrader(t, mplex.NewTransport())
	server, serverID := newTestUpgrader(t)

	clientConn, serverConn := upgradePair(t, client, server, serverID)

	assert.Equal(t, mplex.ProtocolID, clientConn.MuxerScheme())
	assert.Equal(t, mplex.ProtocolID, serverConn.MuxerScheme())
}

// TestUpgradeClosedConn 测试关闭后的操作
func TestUpgradeClosedConn(t *testing.T) {
	client, _ := newTestUpgrader(t)
	server, serverID := newTestUpgrader(t)

	clientConn, _ := upgradePair(t, client, server, serverID)

	require.NoError(t, clientConn.Close())
	assert.True(t, clientConn.IsClosed())

	_, err := clientConn.OpenStream(context.Background())
	assert.ErrorIs(t, err, ErrConnClosed)

	// 重复关闭幂等
	assert.NoError(t, clientConn.Close())
}

// TestCloseOverTCP 测试 TCP 连接上的干净关闭
//
// yamux 关闭会话时已关闭底层 socket，Close 不应把随后的
// 重复关闭当作错误上报。
func TestCloseOverTCP(t *testing.T) {
	client, _ := newTestUpgrader(t)
	server, serverID := newTestUpgrader(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverCh := make(chan *Conn, 1)
	go func() {
		raw, err := ln.Accept()
		if err != nil {
			close(serverCh)
			return
		}
		conn, err := server.Upgrade(context.Background(), raw, DirInbound, types.EmptyPeerID)
		if err != nil {
			close(serverCh)
			return
		}
		serverCh <- conn
	}()

	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	clientConn, err := client.Upgrade(context.Background(), raw, DirOutbound, serverID)
	require.NoError(t, err)

	serverConn, ok := <-serverCh
	require.True(t, ok)
	defer serverConn.Close()

	require.NoError(t, clientConn.Close())
	assert.True(t, clientConn.IsClosed())
}

// TestHandshakeTimeout 测试对端无响应时握手超时
func TestHandshakeTimeout(t *testing.T) {
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	sec, err := noise.New(priv)
	require.NoError(t, err)

	u, err := New(Config{
		Security:         sec,
		Muxers:           []muxer.Transport{yamux.NewTransport()},
		HandshakeTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	_, serverID := newTestUpgrader(t)

	// 对端从不读写，协商卡在 deadline 上
	clientSide, serverSide := net.Pipe()
	defer serverSide.Close()

	_, err = u.Upgrade(context.Background(), clientSide, DirOutbound, serverID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandshakeTimeout)
}

// TestOutboundRequiresPeerID 测试出站升级必须给出对端身份
func TestOutboundRequiresPeerID(t *testing.T) {
	u, _ := newTestUpgrader(t)

	clientSide, serverSide := net.Pipe()
	defer serverSide.Close()

	_, err := u.Upgrade(context.Background(), clientSide, DirOutbound, types.EmptyPeerID)
	assert.ErrorIs(t, err, ErrNoPeerID)
}

// TestConfigValidate 测试配置校验
func TestConfigValidate(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNilSecurity)

	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	sec, err := noise.New(priv)
	require.NoError(t, err)

	_, err = New(Config{Security: sec})
	assert.ErrorIs(t, err, ErrNoStreamMuxer)
}

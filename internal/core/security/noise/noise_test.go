package noise

import (
	"context"
	"crypto/rand"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-rendezvous/pkg/lib/crypto"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

// newTestTransport 创建测试用传输
func newTestTransport(t *testing.T) (*Transport, types.PeerID) {
	t.Helper()

	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)

	id, err := crypto.PeerIDFromPrivateKey(priv)
	require.NoError(t, err)

	tpt, err := New(priv)
	require.NoError(t, err)

	return tpt, id
}

// connectPair 在管道上完成双向握手
func connectPair(t *testing.T, initiator, responder *Transport, expectPeer types.PeerID) (*Conn, *Conn) {
	t.Helper()

	clientSide, serverSide := net.Pipe()

	type result struct {
		conn *Conn
		err  error
	}
	serverCh := make(chan result, 1)

	go func() {
		conn, err := responder.SecureInbound(context.Background(), serverSide, types.EmptyPeerID)
		serverCh <- result{conn, err}
	}()

	clientConn, err := initiator.SecureOutbound(context.Background(), clientSide, expectPeer)
	require.NoError(t, err)

	serverRes := <-serverCh
	require.NoError(t, serverRes.err)

	return clientConn, serverRes.conn
}

// TestHandshake 测试握手与双向身份派生
func TestHandshake(t *testing.T) {
	clientTpt, clientID := newTestTransport(t)
	serverTpt, serverID := newTestTransport(t)

	clientConn, serverConn := connectPair(t, clientTpt, serverTpt, serverID)
	defer clientConn.Close()
	defer serverConn.Close()

	assert.Equal(t, serverID, clientConn.RemotePeer())
	assert.Equal(t, clientID, serverConn.RemotePeer())
	assert.Equal(t, clientID, clientConn.LocalPeer())
	assert.Equal(t, serverID, serverConn.LocalPeer())
	assert.NotEmpty(t, serverConn.RemotePublicKey())
}

// TestDataRoundTrip 测试加密数据双向传输
func TestDataRoundTrip(t *testing.T) {
	clientTpt, _ := newTestTransport(t)
	serverTpt, serverID := newTestTransport(t)

	clientConn, serverConn := connectPair(t, clientTpt, serverTpt, serverID)
	defer clientConn.Close()
	defer serverConn.Close()

	msg := []byte("hello rendezvous")
	go func() {
		_, _ = clientConn.Write(msg)
	}()

	buf := make([]byte, len(msg))
	n, err := serverConn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, msg, buf[:n])

	// 反向
	reply := []byte("ack")
	go func() {
		_, _ = serverConn.Write(reply)
	}()

	buf = make([]byte, len(reply))
	n, err = clientConn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, reply, buf[:n])
}

// TestLargeWrite 测试超过单条消息上限的写入
func TestLargeWrite(t *testing.T) {
	clientTpt, _ := newTestTransport(t)
	serverTpt, serverID := newTestTransport(t)

	clientConn, serverConn := connectPair(t, clientTpt, serverTpt, serverID)
	defer clientConn.Close()
	defer serverConn.Close()

	payload := make([]byte, noiseMaxPlaintext*2+100)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	go func() {
		n, err := clientConn.Write(payload)
		assert.NoError(t, err)
		assert.Equal(t, len(payload), n)
	}()

	received := make([]byte, len(payload))
	total := 0
	for total < len(payload) {
		n, err := serverConn.Read(received[total:])
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, payload, received)
}

// TestPeerIDMismatch 测试期望身份不匹配时握手失败
func TestPeerIDMismatch(t *testing.T) {
	clientTpt, _ := newTestTransport(t)
	serverTpt, _ := newTestTransport(t)
	_, wrongID := newTestTransport(t)

	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	go func() {
		// 服务端握手可能在客户端中止前完成，结果不关心
		conn, _ := serverTpt.SecureInbound(context.Background(), serverSide, types.EmptyPeerID)
		if conn != nil {
			conn.Close()
		}
	}()

	_, err := clientTpt.SecureOutbound(context.Background(), clientSide, wrongID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPeerIDMismatch)
}

// TestNilArguments 测试空参数
func TestNilArguments(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilPrivateKey)

	tpt, _ := newTestTransport(t)
	_, err = tpt.SecureInbound(context.Background(), nil, types.EmptyPeerID)
	assert.ErrorIs(t, err, ErrNilConn)
}

package upgrader

import (
	"context"
	"errors"
	"net"
	"sync/atomic"

	"github.com/dep2p/go-rendezvous/internal/core/muxer"
	"github.com/dep2p/go-rendezvous/internal/core/security/noise"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

// Conn 升级后的连接
//
// 携带握手验证过的对端身份，并提供多路复用的流。
type Conn struct {
	muxer   muxer.Muxer
	secConn *noise.Conn

	security    types.ProtocolID
	muxerScheme types.ProtocolID

	closed atomic.Bool
}

// LocalPeer 返回本地节点 ID
func (c *Conn) LocalPeer() types.PeerID {
	return c.secConn.LocalPeer()
}

// RemotePeer 返回握手验证过的远端节点 ID
func (c *Conn) RemotePeer() types.PeerID {
	return c.secConn.RemotePeer()
}

// RemotePublicKey 返回远端身份公钥（序列化格式）
func (c *Conn) RemotePublicKey() []byte {
	return c.secConn.RemotePublicKey()
}

// Security 返回协商出的安全协议
func (c *Conn) Security() types.ProtocolID {
	return c.security
}

// MuxerScheme 返回协商出的多路复用方案
func (c *Conn) MuxerScheme() types.ProtocolID {
	return c.muxerScheme
}

// OpenStream 打开新的出站流
func (c *Conn) OpenStream(ctx context.Context) (muxer.Stream, error) {
	if c.closed.Load() {
		return nil, ErrConnClosed
	}
	return c.muxer.OpenStream(ctx)
}

// AcceptStream 接受对端打开的流
func (c *Conn) AcceptStream() (muxer.Stream, error) {
	if c.closed.Load() {
		return nil, ErrConnClosed
	}
	return c.muxer.AcceptStream()
}

// Close 关闭连接及其所有流
//
// 多路复用会话关闭时会一并关闭底层连接，随后对安全连接的
// 关闭会撞上已关闭的 socket，这不算失败。
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.muxer.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	if cerr := c.secConn.Close(); err == nil && !errors.Is(cerr, net.ErrClosed) {
		err = cerr
	}
	return err
}

// IsClosed 检查连接是否已关闭
func (c *Conn) IsClosed() bool {
	return c.closed.Load() || c.muxer.IsClosed()
}

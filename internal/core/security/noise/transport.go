package noise

import (
	"context"
	"net"

	"github.com/dep2p/go-rendezvous/pkg/lib/crypto"
	"github.com/dep2p/go-rendezvous/pkg/lib/log"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

var logger = log.Logger("core/security/noise")

// ProtocolID 是 multistream 协商中安全协议的标识
const ProtocolID = types.ProtocolID("/noise")

// Transport Noise 安全传输
//
// 持有本地身份私钥，为入站/出站连接执行 XX 握手。
type Transport struct {
	privKey crypto.PrivateKey
}

// New 创建 Noise 传输
func New(privKey crypto.PrivateKey) (*Transport, error) {
	if privKey == nil {
		return nil, ErrNilPrivateKey
	}
	return &Transport{privKey: privKey}, nil
}

// ID 返回协议标识
func (t *Transport) ID() types.ProtocolID {
	return ProtocolID
}

// SecureInbound 保护入站连接（响应者）
//
// remotePeer 为空表示接受任意对端；非空时握手派生的
// PeerID 必须与之一致，否则返回 ErrPeerIDMismatch。
func (t *Transport) SecureInbound(_ context.Context, conn net.Conn, remotePeer types.PeerID) (*Conn, error) {
	return t.secure(conn, remotePeer, false)
}

// SecureOutbound 保护出站连接（发起者）
func (t *Transport) SecureOutbound(_ context.Context, conn net.Conn, remotePeer types.PeerID) (*Conn, error) {
	return t.secure(conn, remotePeer, true)
}

func (t *Transport) secure(conn net.Conn, remotePeer types.PeerID, isInitiator bool) (*Conn, error) {
	if conn == nil {
		return nil, ErrNilConn
	}

	role := "inbound"
	if isInitiator {
		role = "outbound"
	}
	logger.Debug("Noise 握手开始", "role", role, "remotePeer", remotePeer.ShortString())

	secConn, err := performHandshake(conn, t.privKey, remotePeer, isInitiator)
	if err != nil {
		logger.Debug("Noise 握手失败", "role", role, "error", err)
		return nil, err
	}

	logger.Debug("Noise 握手成功", "role", role, "remotePeer", secConn.RemotePeer().ShortString())
	return secConn, nil
}

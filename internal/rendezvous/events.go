package rendezvous

import (
	"time"

	"github.com/dep2p/go-rendezvous/pkg/types"
)

// ============================================================================
// 生命周期事件
// ============================================================================

// EvtPeerRegistered 注册成功
type EvtPeerRegistered struct {
	Peer      types.PeerID
	Namespace string
	Addrs     []types.Multiaddr
	TTL       time.Duration
}

// EvtPeerNotRegistered 注册被拒绝
type EvtPeerNotRegistered struct {
	Peer      types.PeerID
	Namespace string
	Reason    string
}

// EvtPeerUnregistered 注销
type EvtPeerUnregistered struct {
	Peer      types.PeerID
	Namespace string
}

// EvtRegistrationExpired TTL 到期被驱逐
type EvtRegistrationExpired struct {
	Registration Registration
}

// EvtDiscoverServed 发现请求已服务
type EvtDiscoverServed struct {
	Enquirer  types.PeerID
	Namespace string
	Count     int
}

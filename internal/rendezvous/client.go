package rendezvous

import (
	"context"
	"fmt"
	"net"
	"time"

	mss "github.com/multiformats/go-multistream"

	"github.com/dep2p/go-rendezvous/internal/core/identity"
	"github.com/dep2p/go-rendezvous/internal/core/upgrader"
	pb "github.com/dep2p/go-rendezvous/pkg/lib/proto/rendezvous"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

// ============================================================================
// Client
// ============================================================================

// Client 汇合点客户端
type Client struct {
	identity *identity.Identity
	upgrader *upgrader.Upgrader
}

// NewClient 创建客户端
func NewClient(id *identity.Identity, up *upgrader.Upgrader) (*Client, error) {
	if id == nil || up == nil {
		return nil, fmt.Errorf("rendezvous: nil dependency")
	}
	return &Client{identity: id, upgrader: up}, nil
}

// Dial 连接汇合点并完成升级
//
// expectPeer 为汇合点的节点 ID，握手时校验，不可为空。
func (c *Client) Dial(ctx context.Context, addr string, expectPeer types.PeerID) (*ClientConn, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	conn, err := c.upgrader.Upgrade(ctx, raw, upgrader.DirOutbound, expectPeer)
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}

	return &ClientConn{conn: conn}, nil
}

// ============================================================================
// ClientConn
// ============================================================================

// ClientConn 到汇合点的已升级连接
//
// 每次操作打开一条新流，完成一次请求/响应交换后关闭。
type ClientConn struct {
	conn *upgrader.Conn
}

// RemotePeer 返回汇合点的节点 ID
func (cc *ClientConn) RemotePeer() types.PeerID {
	return cc.conn.RemotePeer()
}

// Close 关闭连接
func (cc *ClientConn) Close() error {
	return cc.conn.Close()
}

// Register 在命名空间下注册自己的地址
//
// 返回服务端实际授予的 TTL（可能被钳制）。
func (cc *ClientConn) Register(ctx context.Context, ns string, addrs []types.Multiaddr, ttl time.Duration) (time.Duration, error) {
	resp, err := cc.roundTrip(ctx, newRegisterMessage(ns, addrs, ttl))
	if err != nil {
		return 0, err
	}

	r := resp.RegisterResponse
	if resp.Type != pb.Message_REGISTER_RESPONSE || r == nil {
		return 0, ErrUnexpectedMessage
	}
	if r.Status != pb.Message_OK {
		return 0, fmt.Errorf("%w: %s (%s)", ErrRegisterFailed, r.Status, r.StatusText)
	}
	return time.Duration(r.Ttl) * time.Second, nil
}

// Unregister 注销命名空间下的注册
func (cc *ClientConn) Unregister(ctx context.Context, ns string) error {
	resp, err := cc.roundTrip(ctx, newUnregisterMessage(ns))
	if err != nil {
		return err
	}

	r := resp.RegisterResponse
	if resp.Type != pb.Message_REGISTER_RESPONSE || r == nil {
		return ErrUnexpectedMessage
	}
	if r.Status != pb.Message_OK {
		return fmt.Errorf("%w: %s (%s)", ErrRegisterFailed, r.Status, r.StatusText)
	}
	return nil
}

// Discovered 发现结果中的单条注册
type Discovered struct {
	Peer      types.PeerID
	Namespace string
	Addrs     []types.Multiaddr
	TTL       time.Duration
}

// Discover 按命名空间发现注册，ns 为空表示所有命名空间
//
// cookie 传入上一页返回的游标可续页，nil 从头开始。
func (cc *ClientConn) Discover(ctx context.Context, ns string, cookie []byte, limit int) ([]Discovered, []byte, error) {
	resp, err := cc.roundTrip(ctx, newDiscoverMessage(ns, cookie, limit))
	if err != nil {
		return nil, nil, err
	}

	r := resp.DiscoverResponse
	if resp.Type != pb.Message_DISCOVER_RESPONSE || r == nil {
		return nil, nil, ErrUnexpectedMessage
	}
	if r.Status != pb.Message_OK {
		return nil, nil, fmt.Errorf("%w: %s (%s)", ErrDiscoverFailed, r.Status, r.StatusText)
	}

	out := make([]Discovered, 0, len(r.Registrations))
	for _, reg := range r.Registrations {
		d := Discovered{
			Namespace: reg.Ns,
			TTL:       time.Duration(reg.Ttl) * time.Second,
		}
		if reg.Peer != nil {
			d.Peer = types.PeerID(reg.Peer.Id)
			d.Addrs = make([]types.Multiaddr, len(reg.Peer.Addrs))
			for i, a := range reg.Peer.Addrs {
				d.Addrs[i] = types.Multiaddr(a)
			}
		}
		out = append(out, d)
	}
	return out, r.Cookie, nil
}

// roundTrip 打开流、协商协议、发送请求并读取响应
func (cc *ClientConn) roundTrip(ctx context.Context, req *pb.Message) (*pb.Message, error) {
	stream, err := cc.conn.OpenStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	} else {
		_ = stream.SetDeadline(time.Now().Add(streamTimeout))
	}

	if _, err := mss.SelectOneOf([]string{string(ProtocolID)}, stream); err != nil {
		_ = stream.Reset()
		return nil, fmt.Errorf("protocol negotiation: %w", err)
	}

	if err := WriteMessage(stream, req); err != nil {
		_ = stream.Reset()
		return nil, fmt.Errorf("write request: %w", err)
	}

	resp, err := ReadMessage(stream)
	if err != nil {
		_ = stream.Reset()
		return nil, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

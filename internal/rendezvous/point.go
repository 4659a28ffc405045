package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	mss "github.com/multiformats/go-multistream"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-rendezvous/internal/core/identity"
	"github.com/dep2p/go-rendezvous/internal/core/muxer"
	"github.com/dep2p/go-rendezvous/internal/core/upgrader"
	pb "github.com/dep2p/go-rendezvous/pkg/lib/proto/rendezvous"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

// streamTimeout 单个请求/响应交换的超时
const streamTimeout = time.Minute

// ============================================================================
// Point
// ============================================================================

// Point 汇合点服务端
//
// 接受连接，升级为安全多路复用连接，每条流处理一次
// 请求/响应交换。流上的协议身份始终取自连接握手。
type Point struct {
	cfg      Config
	identity *identity.Identity
	store    *Store
	upgrader *upgrader.Upgrader

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	eg     *errgroup.Group
	egCtx  context.Context
	cancel context.CancelFunc
}

// NewPoint 创建汇合点
func NewPoint(cfg Config, id *identity.Identity, store *Store, up *upgrader.Upgrader) (*Point, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if id == nil || store == nil || up == nil {
		return nil, errors.New("rendezvous: nil dependency")
	}

	ctx, cancel := context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(ctx)

	return &Point{
		cfg:      cfg,
		identity: id,
		store:    store,
		upgrader: up,
		eg:       eg,
		egCtx:    egCtx,
		cancel:   cancel,
	}, nil
}

// PeerID 返回汇合点自身的节点 ID
func (p *Point) PeerID() types.PeerID {
	return p.identity.PeerID()
}

// ListenAndServe 监听 TCP 地址并服务，阻塞直到 Close 或监听失败
func (p *Point) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return p.Serve(ln)
}

// Serve 在给定监听器上服务，阻塞直到 Close 或监听失败
func (p *Point) Serve(ln net.Listener) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		ln.Close()
		return ErrStoreClosed
	}
	p.listener = ln
	p.mu.Unlock()

	logger.Info("汇合点开始服务", "addr", ln.Addr().String(), "peer", p.PeerID().ShortString())

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-p.egCtx.Done():
				return nil
			default:
			}
			p.mu.Lock()
			closed := p.closed
			p.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		p.eg.Go(func() error {
			p.handleConn(conn)
			return nil
		})
	}
}

// Addr 返回监听地址（未开始服务时为 nil）
func (p *Point) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Close 停止服务并等待连接处理结束
func (p *Point) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	ln := p.listener
	p.mu.Unlock()

	p.cancel()
	if ln != nil {
		ln.Close()
	}
	return p.eg.Wait()
}

// ============================================================================
// 连接处理
// ============================================================================

// handleConn 升级连接并服务其上的流
//
// 握手或单条流的失败只影响本连接/本流，不波及其他会话。
func (p *Point) handleConn(raw net.Conn) {
	conn, err := p.upgrader.Upgrade(p.egCtx, raw, upgrader.DirInbound, types.EmptyPeerID)
	if err != nil {
		logger.Debug("连接升级失败", "remote", raw.RemoteAddr().String(), "error", err)
		return
	}
	defer conn.Close()

	remotePeer := conn.RemotePeer()
	logger.Debug("连接建立", "peer", remotePeer.ShortString(), "muxer", conn.MuxerScheme())

	// 连接关闭时按策略清除该节点的注册
	if p.cfg.DropOnDisconnect {
		defer p.store.UnregisterPeer(remotePeer)
	}

	// 服务端关闭时强制断开连接；连接自然结束时看护 goroutine 随之退出
	connDone := make(chan struct{})
	defer close(connDone)
	go func() {
		select {
		case <-p.egCtx.Done():
			conn.Close()
		case <-connDone:
		}
	}()

	// 并发流配额
	slots := make(chan struct{}, p.cfg.MaxStreamsPerConnection)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		stream, err := conn.AcceptStream()
		if err != nil {
			logger.Debug("连接结束", "peer", remotePeer.ShortString())
			return
		}

		select {
		case slots <- struct{}{}:
		default:
			// 超过单连接流上限，拒绝新流
			_ = stream.Reset()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			p.handleStream(remotePeer, stream)
		}()
	}
}

// handleStream 处理一条流上的一次请求/响应交换
//
// 协议经 multistream 按流协商；畸形或超限的消息只重置
// 本流。响应写回后流即关闭。
func (p *Point) handleStream(peer types.PeerID, stream muxer.Stream) {
	defer stream.Close()
	_ = stream.SetDeadline(time.Now().Add(streamTimeout))

	m := mss.NewMultistreamMuxer[string]()
	m.AddHandler(string(ProtocolID), nil)
	if _, _, err := m.Negotiate(stream); err != nil {
		logger.Debug("流协议协商失败", "peer", peer.ShortString(), "error", err)
		_ = stream.Reset()
		return
	}

	req, err := ReadMessage(stream)
	if err != nil {
		logger.Debug("读取请求失败", "peer", peer.ShortString(), "error", err)
		_ = stream.Reset()
		return
	}

	resp := p.dispatch(peer, req)
	if resp == nil {
		_ = stream.Reset()
		return
	}

	if err := WriteMessage(stream, resp); err != nil {
		logger.Debug("写入响应失败", "peer", peer.ShortString(), "error", err)
		_ = stream.Reset()
	}
}

// dispatch 执行请求对应的注册表操作
//
// 返回 nil 表示请求非法，流应被重置。
func (p *Point) dispatch(peer types.PeerID, req *pb.Message) *pb.Message {
	switch req.Type {
	case pb.Message_REGISTER:
		return p.handleRegister(peer, req.Register)
	case pb.Message_UNREGISTER:
		return p.handleUnregister(peer, req.Unregister)
	case pb.Message_DISCOVER:
		return p.handleDiscover(peer, req.Discover)
	default:
		logger.Debug("未知请求类型", "peer", peer.ShortString(), "type", req.Type.String())
		return nil
	}
}

func (p *Point) handleRegister(peer types.PeerID, req *pb.Message_Register) *pb.Message {
	if req == nil {
		return newRegisterErrorResponse(pb.Message_E_INTERNAL_ERROR, "missing register body")
	}

	// 载荷中的 id 被忽略，身份取自握手
	var addrs []types.Multiaddr
	if req.Peer != nil {
		addrs = make([]types.Multiaddr, len(req.Peer.Addrs))
		for i, a := range req.Peer.Addrs {
			addrs[i] = types.Multiaddr(a)
		}
	}

	reg, err := p.store.Register(peer, req.Ns, addrs, time.Duration(req.Ttl)*time.Second)
	if err != nil {
		status, text := statusForError(err)
		return newRegisterErrorResponse(status, text)
	}
	return newRegisterResponse(reg.TTL)
}

func (p *Point) handleUnregister(peer types.PeerID, req *pb.Message_Unregister) *pb.Message {
	if req == nil {
		return newRegisterErrorResponse(pb.Message_E_INTERNAL_ERROR, "missing unregister body")
	}

	p.store.Unregister(peer, req.Ns)
	return newUnregisterResponse()
}

func (p *Point) handleDiscover(peer types.PeerID, req *pb.Message_Discover) *pb.Message {
	if req == nil {
		return newDiscoverErrorResponse(pb.Message_E_INTERNAL_ERROR, "missing discover body")
	}

	regs, cookie, err := p.store.Discover(peer, req.Ns, req.Cookie, int(req.Limit))
	if err != nil {
		status, text := statusForError(err)
		return newDiscoverErrorResponse(status, text)
	}
	return newDiscoverResponse(regs, cookie, p.store.Now())
}

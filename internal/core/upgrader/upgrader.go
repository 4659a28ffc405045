package upgrader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	mss "github.com/multiformats/go-multistream"

	"github.com/dep2p/go-rendezvous/internal/core/muxer"
	"github.com/dep2p/go-rendezvous/internal/core/security/noise"
	"github.com/dep2p/go-rendezvous/pkg/lib/log"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

var logger = log.Logger("core/upgrader")

// Direction 连接方向
type Direction int

const (
	// DirInbound 入站连接（本端为响应者）
	DirInbound Direction = iota
	// DirOutbound 出站连接（本端为发起者）
	DirOutbound
)

// String 返回方向名称
func (d Direction) String() string {
	if d == DirOutbound {
		return "outbound"
	}
	return "inbound"
}

// Upgrader 连接升级器
type Upgrader struct {
	security         *noise.Transport
	muxers           []muxer.Transport
	handshakeTimeout time.Duration
}

// New 创建连接升级器
func New(cfg Config) (*Upgrader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}

	return &Upgrader{
		security:         cfg.Security,
		muxers:           cfg.Muxers,
		handshakeTimeout: timeout,
	}, nil
}

// Upgrade 升级连接
//
// 升级流程：
//  1. 协商安全协议（multistream-select）
//  2. Noise XX 握手
//  3. 协商多路复用方案（multistream-select）
//  4. 建立多路复用会话
//
// remotePeer 对入站连接可为空（身份由握手确定）；
// 出站连接必须给出期望的对端 PeerID。
// 超出握手期限的失败返回 ErrHandshakeTimeout。
// 失败时底层连接被关闭。
func (u *Upgrader) Upgrade(ctx context.Context, conn net.Conn, dir Direction, remotePeer types.PeerID) (*Conn, error) {
	isServer := dir == DirInbound

	if dir == DirOutbound && remotePeer.IsEmpty() {
		conn.Close()
		return nil, ErrNoPeerID
	}

	// 整个升级过程共用一个 deadline
	deadline := time.Now().Add(u.handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	// 1. 协商安全协议
	if err := u.negotiateSecurity(conn, isServer); err != nil {
		conn.Close()
		return nil, wrapUpgradeErr("security negotiation", err, deadline)
	}

	// 2. 安全握手
	var secConn *noise.Conn
	var err error
	if isServer {
		secConn, err = u.security.SecureInbound(ctx, conn, remotePeer)
	} else {
		secConn, err = u.security.SecureOutbound(ctx, conn, remotePeer)
	}
	if err != nil {
		conn.Close()
		return nil, wrapUpgradeErr("security handshake", err, deadline)
	}

	// 3. 协商多路复用方案
	muxTpt, err := u.negotiateMuxer(secConn, isServer)
	if err != nil {
		secConn.Close()
		return nil, wrapUpgradeErr("muxer negotiation", err, deadline)
	}

	// 4. 建立多路复用会话
	mux, err := muxTpt.NewMuxer(secConn, isServer)
	if err != nil {
		secConn.Close()
		return nil, wrapUpgradeErr("muxer setup", err, deadline)
	}

	// 清除握手 deadline，后续超时由上层控制
	if err := conn.SetDeadline(time.Time{}); err != nil {
		mux.Close()
		return nil, fmt.Errorf("clear deadline: %w", err)
	}

	logger.Debug("连接升级成功",
		"direction", dir,
		"remotePeer", secConn.RemotePeer().ShortString(),
		"security", u.security.ID(),
		"muxer", muxTpt.ID())

	return &Conn{
		muxer:       mux,
		secConn:     secConn,
		security:    u.security.ID(),
		muxerScheme: muxTpt.ID(),
	}, nil
}

// wrapUpgradeErr 包装升级各阶段的失败
//
// 由握手期限触发的失败统一归入 ErrHandshakeTimeout，
// 方便调用方与其他协商失败区分。
func wrapUpgradeErr(stage string, err error, deadline time.Time) error {
	var nerr net.Error
	timedOut := errors.Is(err, os.ErrDeadlineExceeded) ||
		(errors.As(err, &nerr) && nerr.Timeout()) ||
		!time.Now().Before(deadline)
	if timedOut {
		return fmt.Errorf("%w: %s: %v", ErrHandshakeTimeout, stage, err)
	}
	return fmt.Errorf("%s: %w", stage, err)
}

// negotiateSecurity 协商安全协议
//
// 服务器端用 MultistreamMuxer.Negotiate 从客户端提议中选择，
// 客户端用 SelectOneOf 提议协议列表。
func (u *Upgrader) negotiateSecurity(conn net.Conn, isServer bool) error {
	protoID := string(u.security.ID())

	if isServer {
		m := mss.NewMultistreamMuxer[string]()
		m.AddHandler(protoID, nil)

		selected, _, err := m.Negotiate(conn)
		if err != nil {
			return fmt.Errorf("server negotiate: %w", err)
		}
		if selected != protoID {
			return fmt.Errorf("unexpected security protocol %s", selected)
		}
		return nil
	}

	if _, err := mss.SelectOneOf([]string{protoID}, conn); err != nil {
		return fmt.Errorf("client negotiate: %w", err)
	}
	return nil
}

// negotiateMuxer 协商多路复用方案
func (u *Upgrader) negotiateMuxer(conn net.Conn, isServer bool) (muxer.Transport, error) {
	var selected string
	var err error

	if isServer {
		m := mss.NewMultistreamMuxer[string]()
		for _, tpt := range u.muxers {
			m.AddHandler(string(tpt.ID()), nil)
		}
		selected, _, err = m.Negotiate(conn)
		if err != nil {
			return nil, fmt.Errorf("server negotiate: %w", err)
		}
	} else {
		protocols := make([]string, len(u.muxers))
		for i, tpt := range u.muxers {
			protocols[i] = string(tpt.ID())
		}
		selected, err = mss.SelectOneOf(protocols, conn)
		if err != nil {
			return nil, fmt.Errorf("client negotiate: %w", err)
		}
	}

	for _, tpt := range u.muxers {
		if string(tpt.ID()) == selected {
			return tpt, nil
		}
	}
	return nil, fmt.Errorf("negotiated muxer %s not found", selected)
}

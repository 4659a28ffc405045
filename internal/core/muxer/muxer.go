package muxer

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/dep2p/go-rendezvous/pkg/types"
)

// Stream 多路复用连接上的一条双向流
type Stream interface {
	io.ReadWriteCloser

	// Reset 立即中止流的两个方向
	Reset() error

	// CloseWrite 关闭写端（实现不支持半关闭时等价于 Close）
	CloseWrite() error

	// SetDeadline 设置读写截止时间
	SetDeadline(t time.Time) error
}

// Muxer 一条连接上的多路复用会话
type Muxer interface {
	// OpenStream 打开新的出站流
	OpenStream(ctx context.Context) (Stream, error)

	// AcceptStream 接受对端打开的流，阻塞直到有新流或会话关闭
	AcceptStream() (Stream, error)

	// Close 关闭会话及其所有流
	Close() error

	// IsClosed 检查会话是否已关闭
	IsClosed() bool
}

// Transport 多路复用方案
//
// ID 是 multistream 协商时使用的协议标识，
// NewMuxer 把一条已建立的连接包装为多路复用会话。
type Transport interface {
	ID() types.ProtocolID
	NewMuxer(conn net.Conn, isServer bool) (Muxer, error)
}

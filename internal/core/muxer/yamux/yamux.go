// Package yamux 提供基于 hashicorp/yamux 的多路复用实现
package yamux

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/hashicorp/yamux"

	"github.com/dep2p/go-rendezvous/internal/core/muxer"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

// ProtocolID 协商标识
const ProtocolID = types.ProtocolID("/yamux/1.0.0")

// DefaultConfig 返回默认的 yamux 配置
func DefaultConfig() *yamux.Config {
	return &yamux.Config{
		AcceptBacklog:          256,
		EnableKeepAlive:        true,
		KeepAliveInterval:      30 * time.Second,
		ConnectionWriteTimeout: 10 * time.Second,
		MaxStreamWindowSize:    256 * 1024,
		StreamOpenTimeout:      75 * time.Second,
		StreamCloseTimeout:     5 * time.Minute,
		LogOutput:              io.Discard,
	}
}

// Transport yamux 多路复用方案
type Transport struct {
	config *yamux.Config
}

var _ muxer.Transport = (*Transport)(nil)

// NewTransport 创建 yamux 传输
func NewTransport() *Transport {
	return &Transport{config: DefaultConfig()}
}

// ID 返回协商标识
func (t *Transport) ID() types.ProtocolID {
	return ProtocolID
}

// NewMuxer 在连接上创建 yamux 会话
func (t *Transport) NewMuxer(conn net.Conn, isServer bool) (muxer.Muxer, error) {
	var sess *yamux.Session
	var err error

	if isServer {
		sess, err = yamux.Server(conn, t.config)
	} else {
		sess, err = yamux.Client(conn, t.config)
	}
	if err != nil {
		return nil, fmt.Errorf("create yamux session: %w", err)
	}

	return &Muxer{session: sess}, nil
}

// Muxer 封装 yamux.Session
type Muxer struct {
	session *yamux.Session
}

var _ muxer.Muxer = (*Muxer)(nil)

// OpenStream 打开新的出站流
//
// yamux 的 OpenStream 不支持 context，在单独的 goroutine
// 中执行；context 取消时关闭孤立的流防止泄漏。
func (m *Muxer) OpenStream(ctx context.Context) (muxer.Stream, error) {
	if m.IsClosed() {
		return nil, muxer.ErrMuxerClosed
	}

	type result struct {
		stream *yamux.Stream
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		s, err := m.session.OpenStream()
		select {
		case resultCh <- result{stream: s, err: err}:
		default:
			if s != nil {
				_ = s.Close()
			}
		}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resultCh:
		if r.err != nil {
			return nil, fmt.Errorf("open stream: %w", r.err)
		}
		return &Stream{stream: r.stream}, nil
	}
}

// AcceptStream 接受对端打开的流
func (m *Muxer) AcceptStream() (muxer.Stream, error) {
	s, err := m.session.AcceptStream()
	if err != nil {
		return nil, fmt.Errorf("accept stream: %w", err)
	}
	return &Stream{stream: s}, nil
}

// Close 关闭会话
func (m *Muxer) Close() error {
	return m.session.Close()
}

// IsClosed 检查会话是否已关闭
func (m *Muxer) IsClosed() bool {
	return m.session.IsClosed()
}

// Stream 封装 yamux.Stream
type Stream struct {
	stream *yamux.Stream
}

var _ muxer.Stream = (*Stream)(nil)

func (s *Stream) Read(p []byte) (int, error)  { return s.stream.Read(p) }
func (s *Stream) Write(p []byte) (int, error) { return s.stream.Write(p) }
func (s *Stream) Close() error                { return s.stream.Close() }

// Reset 中止流
//
// yamux 没有独立的 RST，用 Close 实现
func (s *Stream) Reset() error {
	return s.stream.Close()
}

// CloseWrite 关闭写端
//
// yamux 的 Close 发送 FIN 并关闭两端，不支持真正的半关闭
func (s *Stream) CloseWrite() error {
	return s.stream.Close()
}

// SetDeadline 设置读写截止时间
func (s *Stream) SetDeadline(t time.Time) error {
	return s.stream.SetDeadline(t)
}

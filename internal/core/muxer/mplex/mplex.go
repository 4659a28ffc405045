// Package mplex 提供基于 go-mplex 的多路复用实现
//
// mplex 比 yamux 更简单（无流量控制），作为第二协商方案保留，
// 与只支持 mplex 的对端保持互通。
package mplex

import (
	"context"
	"fmt"
	"net"
	"time"

	mp "github.com/libp2p/go-mplex"

	"github.com/dep2p/go-rendezvous/internal/core/muxer"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

// ProtocolID 协商标识
const ProtocolID = types.ProtocolID("/mplex/6.7.0")

// Transport mplex 多路复用方案
type Transport struct{}

var _ muxer.Transport = (*Transport)(nil)

// NewTransport 创建 mplex 传输
func NewTransport() *Transport {
	return &Transport{}
}

// ID 返回协商标识
func (t *Transport) ID() types.ProtocolID {
	return ProtocolID
}

// NewMuxer 在连接上创建 mplex 会话
func (t *Transport) NewMuxer(conn net.Conn, isServer bool) (muxer.Muxer, error) {
	sess, err := mp.NewMultiplex(conn, !isServer, nil)
	if err != nil {
		return nil, fmt.Errorf("create mplex session: %w", err)
	}
	return &Muxer{session: sess}, nil
}

// Muxer 封装 mplex.Multiplex
type Muxer struct {
	session *mp.Multiplex
}

var _ muxer.Muxer = (*Muxer)(nil)

// OpenStream 打开新的出站流
func (m *Muxer) OpenStream(ctx context.Context) (muxer.Stream, error) {
	s, err := m.session.NewStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	return &Stream{stream: s}, nil
}

// AcceptStream 接受对端打开的流
func (m *Muxer) AcceptStream() (muxer.Stream, error) {
	s, err := m.session.Accept()
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

// Stream 封装 mplex.Stream
type Stream struct {
	stream *mp.Stream
}

var _ muxer.Stream = (*Stream)(nil)

func (s *Stream) Read(p []byte) (int, error)  { return s.stream.Read(p) }
func (s *Stream) Write(p []byte) (int, error) { return s.stream.Write(p) }
func (s *Stream) Close() error                { return s.stream.Close() }

// Reset 中止流的两个方向
func (s *Stream) Reset() error {
	return s.stream.Reset()
}

// CloseWrite 关闭写端（mplex 支持半关闭）
func (s *Stream) CloseWrite() error {
	return s.stream.CloseWrite()
}

// SetDeadline 设置读写截止时间
func (s *Stream) SetDeadline(t time.Time) error {
	return s.stream.SetDeadline(t)
}

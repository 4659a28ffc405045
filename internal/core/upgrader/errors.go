package upgrader

import "errors"

var (
	// ErrNilSecurity 未提供安全传输
	ErrNilSecurity = errors.New("upgrader: no security transport")

	// ErrNoStreamMuxer 未提供多路复用方案
	ErrNoStreamMuxer = errors.New("upgrader: no stream muxer")

	// ErrNoPeerID 出站升级未提供期望的对端 PeerID
	ErrNoPeerID = errors.New("upgrader: outbound upgrade requires remote peer ID")

	// ErrHandshakeTimeout 升级在握手期限内未完成
	ErrHandshakeTimeout = errors.New("upgrader: handshake timed out")

	// ErrConnClosed 升级后的连接已关闭
	ErrConnClosed = errors.New("upgrader: connection is closed")
)

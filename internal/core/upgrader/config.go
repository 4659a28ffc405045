package upgrader

import (
	"time"

	"github.com/dep2p/go-rendezvous/internal/core/muxer"
	"github.com/dep2p/go-rendezvous/internal/core/security/noise"
)

// DefaultHandshakeTimeout 默认握手超时
//
// 覆盖安全协商、Noise 握手与多路复用协商的全过程。
const DefaultHandshakeTimeout = 20 * time.Second

// Config 升级器配置
type Config struct {
	// Security 安全传输（必填）
	Security *noise.Transport

	// Muxers 多路复用方案，按协商优先级排列（必填）
	Muxers []muxer.Transport

	// HandshakeTimeout 升级全过程的超时，0 表示使用默认值
	HandshakeTimeout time.Duration
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Security == nil {
		return ErrNilSecurity
	}
	if len(c.Muxers) == 0 {
		return ErrNoStreamMuxer
	}
	return nil
}

package rendezvous

import (
	"errors"
	"time"
)

// ============================================================================
// 配置
// ============================================================================

const (
	// DefaultMinTTL 最小注册 TTL
	DefaultMinTTL = 2 * time.Hour
	// DefaultMaxTTL 最大注册 TTL
	DefaultMaxTTL = 72 * time.Hour
	// DefaultTTL 请求未携带 TTL 时的默认值
	DefaultTTL = 2 * time.Hour

	// DefaultMaxNamespaceLength 命名空间最大字节长度
	DefaultMaxNamespaceLength = 255
	// DefaultMaxRegistrationsPerPeer 单节点注册数上限
	DefaultMaxRegistrationsPerPeer = 100
	// DefaultMaxDiscoverLimit 单次发现返回条数上限
	DefaultMaxDiscoverLimit = 1000
	// DefaultMaxAddrsPerRegistration 单条注册携带地址数上限
	DefaultMaxAddrsPerRegistration = 16
	// DefaultMaxStreamsPerConnection 单连接并发流上限
	DefaultMaxStreamsPerConnection = 16
)

// Config 汇合点配置
type Config struct {
	// MinTTL/MaxTTL 注册 TTL 的钳制区间
	MinTTL time.Duration
	MaxTTL time.Duration

	// DefaultTTL 请求未携带 TTL 时使用
	DefaultTTL time.Duration

	// MaxNamespaceLength 命名空间最大字节长度
	MaxNamespaceLength int

	// MaxRegistrationsPerPeer 单节点注册数上限，超出时拒绝为 Throttled
	MaxRegistrationsPerPeer int

	// MaxDiscoverLimit 单次发现返回条数上限（也是 limit 缺省值）
	MaxDiscoverLimit int

	// MaxAddrsPerRegistration 单条注册携带地址数上限（去重后）
	MaxAddrsPerRegistration int

	// MaxStreamsPerConnection 单连接并发流上限
	MaxStreamsPerConnection int

	// HandshakeTimeout 连接升级超时，0 表示使用升级器默认值
	HandshakeTimeout time.Duration

	// DropOnDisconnect 连接断开时立即清除该节点的全部注册。
	// 默认关闭：注册存活到 TTL 到期，容忍间歇性连通。
	DropOnDisconnect bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MinTTL:                  DefaultMinTTL,
		MaxTTL:                  DefaultMaxTTL,
		DefaultTTL:              DefaultTTL,
		MaxNamespaceLength:      DefaultMaxNamespaceLength,
		MaxRegistrationsPerPeer: DefaultMaxRegistrationsPerPeer,
		MaxDiscoverLimit:        DefaultMaxDiscoverLimit,
		MaxAddrsPerRegistration: DefaultMaxAddrsPerRegistration,
		MaxStreamsPerConnection: DefaultMaxStreamsPerConnection,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.MinTTL <= 0 || c.MaxTTL <= 0 {
		return errors.New("rendezvous: ttl bounds must be positive")
	}
	if c.MinTTL > c.MaxTTL {
		return errors.New("rendezvous: min ttl exceeds max ttl")
	}
	if c.DefaultTTL < c.MinTTL || c.DefaultTTL > c.MaxTTL {
		return errors.New("rendezvous: default ttl outside [min, max]")
	}
	if c.MaxNamespaceLength <= 0 {
		return errors.New("rendezvous: max namespace length must be positive")
	}
	if c.MaxRegistrationsPerPeer <= 0 {
		return errors.New("rendezvous: max registrations per peer must be positive")
	}
	if c.MaxDiscoverLimit <= 0 {
		return errors.New("rendezvous: max discover limit must be positive")
	}
	if c.MaxAddrsPerRegistration <= 0 {
		return errors.New("rendezvous: max addrs per registration must be positive")
	}
	if c.MaxStreamsPerConnection <= 0 {
		return errors.New("rendezvous: max streams per connection must be positive")
	}
	return nil
}

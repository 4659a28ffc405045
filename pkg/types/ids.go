package types

import (
	"errors"

	"github.com/mr-tron/base58"
)

// ============================================================================
//                              PeerID - 节点标识
// ============================================================================

// PeerID 节点唯一标识符
// 由公钥派生（公钥序列化后的 SHA256 哈希，Base58 编码）
//
// 外部表示格式：
//   - String(): Base58 编码（用户可读、可分享）
//   - ShortString(): Base58 前缀（日志简短标识）
//
// PeerID 只能来自传输层握手验证，不得从协议消息载荷中提取。
type PeerID string

// EmptyPeerID 空节点ID
const EmptyPeerID PeerID = ""

// ErrInvalidPeerID 无效的节点ID错误
var ErrInvalidPeerID = errors.New("invalid peer ID: must be Base58 of a 32-byte digest")

// String 返回 PeerID 的字符串表示
func (id PeerID) String() string {
	return string(id)
}

// ShortString 返回 PeerID 的短字符串表示
//
// 格式：Base58 前 8 个字符，用于日志中的简短标识。
func (id PeerID) ShortString() string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

// IsEmpty 检查 PeerID 是否为空
func (id PeerID) IsEmpty() bool {
	return id == EmptyPeerID
}

// Equal 比较两个 PeerID 是否相等
func (id PeerID) Equal(other PeerID) bool {
	return id == other
}

// Validate 验证 PeerID 格式
//
// 合法的 PeerID 是 32 字节摘要的 Base58 编码。
func (id PeerID) Validate() error {
	if id.IsEmpty() {
		return ErrInvalidPeerID
	}
	b, err := base58.Decode(string(id))
	if err != nil || len(b) != 32 {
		return ErrInvalidPeerID
	}
	return nil
}

// PeerIDFromBytes 从 32 字节摘要创建 PeerID
func PeerIDFromBytes(b []byte) (PeerID, error) {
	if len(b) != 32 {
		return EmptyPeerID, ErrInvalidPeerID
	}
	return PeerID(base58.Encode(b)), nil
}

// ============================================================================
//                              ProtocolID - 协议标识
// ============================================================================

// ProtocolID 协议标识符
// 格式: /name/version，如 /rendezvous/1.0.0
type ProtocolID string

// String 返回协议ID字符串
func (p ProtocolID) String() string {
	return string(p)
}

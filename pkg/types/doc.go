// Package types 定义 go-rendezvous 的基础类型
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 主要类型
//
//   - PeerID: 节点标识，由公钥派生（Base58(SHA256(序列化公钥))）
//   - Multiaddr: 统一地址类型（如 /ip4/1.2.3.4/tcp/4001）
//   - ProtocolID: 协议标识符（如 /rendezvous/1.0.0）
//
// # 身份约束
//
// PeerID 永远不从消息载荷中信任——唯一的来源是传输层握手验证后的
// 连接身份（见 internal/core/security/noise）。
package types

// Package rendezvous 实现 Rendezvous 汇合点协议引擎
//
// 节点把自己的可达地址按命名空间注册到汇合点，
// 其他节点按命名空间发现已注册的节点。
//
// 组成：
//   - Store: 注册表 + 命名空间索引 + TTL 过期调度（单锁守护的一致性单元）
//   - Point: 汇合点服务端，接受连接并按流分发协议请求
//   - Client: 客户端，发起注册/注销/发现请求
//
// 所有协议消息中的节点身份都来自连接握手验证过的 PeerID，
// 消息载荷里的 id 字段从不被信任。
package rendezvous

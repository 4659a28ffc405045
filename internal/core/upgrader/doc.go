// Package upgrader 实现连接升级器
//
// 升级器把一条裸 TCP 连接升级为带身份、加密、多路复用的连接：
//
//  1. multistream-select 协商安全协议
//  2. Noise XX 握手（相互认证，派生对端 PeerID）
//  3. multistream-select 协商多路复用方案
//  4. 建立多路复用会话
//
// 整个升级过程共用一个握手超时（HandshakeTimeout），
// 超时由底层连接的 deadline 实现。
package upgrader

// Package muxer 定义流多路复用抽象
//
// 安全握手完成后，连接升级器通过 multistream 协商选择一种
// 多路复用方案，并用对应的 Transport 把加密连接包装为 Muxer。
// 子包提供两种实现：
//   - yamux: /yamux/1.0.0（默认，优先协商）
//   - mplex: /mplex/6.7.0
package muxer

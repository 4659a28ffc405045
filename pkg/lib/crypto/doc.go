// Package crypto 提供 go-rendezvous 密码学工具
//
// 本包覆盖三个职能：
//
//   - Ed25519 密钥对的生成、签名与验证
//   - 密钥的序列化格式（[Type(1)][Length(4)][Data]，跨节点兼容）
//   - PeerID 派生：Base58(SHA256(序列化公钥))
//
// # 使用示例
//
//	priv, pub, err := crypto.GenerateEd25519Key(rand.Reader)
//	peerID, err := crypto.PeerIDFromPublicKey(pub)
//
// 服务只支持 Ed25519 身份密钥；KeyType 枚举保留其余取值用于
// 识别并拒绝不支持的序列化密钥。
package crypto

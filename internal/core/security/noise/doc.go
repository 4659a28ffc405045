// Package noise 实现 Noise XX 安全传输
//
// 本实现遵循 libp2p-noise 规范：
// https://github.com/libp2p/specs/blob/master/noise/README.md
//
// Noise XX 握手流程：
//
//	-> e                                      (发起者发送临时公钥)
//	<- e, ee, s, es, payload                  (响应者发送临时公钥、静态公钥、payload)
//	-> s, se, payload                         (发起者发送静态公钥、payload)
//
// payload 包含：
//   - identity_key: Ed25519 身份公钥（序列化格式）
//   - identity_sig: Sign("noise-libp2p-static-key:" + curve25519_static_pubkey)
//
// 握手完成后双方都持有对端经过签名验证的身份公钥，
// RemotePeer() 返回的 PeerID 由该公钥派生，不可伪造。
package noise

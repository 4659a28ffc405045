// Package noise 包含 Noise 握手载荷的 protobuf 定义
//
// 实现 libp2p-noise 规范的 payload 结构
package noise

import (
	"errors"

	"github.com/multiformats/go-varint"
)

// ErrInvalidPayload 表示无效的 payload 数据
var ErrInvalidPayload = errors.New("invalid noise payload data")

// NoiseHandshakePayload 是 Noise 握手的 payload 结构
//
// libp2p-noise 协议要求在握手消息中包含：
//   - IdentityKey: Ed25519 公钥（序列化的 PublicKey）
//   - IdentitySig: 对 "noise-libp2p-static-key:" + Curve25519静态公钥 的签名
type NoiseHandshakePayload struct {
	// Ed25519 身份公钥（序列化格式）
	IdentityKey []byte
	// 签名：Sign("noise-libp2p-static-key:" + curve25519_static_pubkey)
	IdentitySig []byte
}

// Marshal 序列化 NoiseHandshakePayload
//
// 使用 protobuf wire format 编码：
//   - Field 1 (identity_key): tag=0x0a, wire type=2 (length-delimited)
//   - Field 2 (identity_sig): tag=0x12, wire type=2 (length-delimited)
func (p *NoiseHandshakePayload) Marshal() ([]byte, error) {
	result := make([]byte, 0, len(p.IdentityKey)+len(p.IdentitySig)+10)

	if len(p.IdentityKey) > 0 {
		result = append(result, 0x0a)
		result = append(result, varint.ToUvarint(uint64(len(p.IdentityKey)))...)
		result = append(result, p.IdentityKey...)
	}

	if len(p.IdentitySig) > 0 {
		result = append(result, 0x12)
		result = append(result, varint.ToUvarint(uint64(len(p.IdentitySig)))...)
		result = append(result, p.IdentitySig...)
	}

	return result, nil
}

// Unmarshal 反序列化 NoiseHandshakePayload
func (p *NoiseHandshakePayload) Unmarshal(data []byte) error {
	for len(data) > 0 {
		tag := data[0]
		data = data[1:]

		fieldNum := tag >> 3
		wireType := tag & 0x07

		if wireType != 2 { // 只期望 length-delimited 类型
			return ErrInvalidPayload
		}

		length, n, err := varint.FromUvarint(data)
		if err != nil {
			return ErrInvalidPayload
		}
		data = data[n:]

		if length > uint64(len(data)) {
			return ErrInvalidPayload
		}

		switch fieldNum {
		case 1: // identity_key
			p.IdentityKey = make([]byte, length)
			copy(p.IdentityKey, data[:length])
		case 2: // identity_sig
			p.IdentitySig = make([]byte, length)
			copy(p.IdentitySig, data[:length])
			// 其他字段静默忽略（向前兼容）
		}

		data = data[length:]
	}

	return nil
}

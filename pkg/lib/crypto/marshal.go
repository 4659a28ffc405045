package crypto

import (
	"encoding/binary"
	"fmt"
)

// ============================================================================
//                              序列化格式
// ============================================================================

// 序列化格式：
//
//   ┌─────────────────────────────────────────────────────────────┐
//   │                    公钥/私钥序列化格式                         │
//   ├─────────────────────────────────────────────────────────────┤
//   │  Type:   uint8 (KeyType)                                    │
//   │  Length: uint32 (大端序)                                     │
//   │  Data:   密钥数据                                            │
//   └─────────────────────────────────────────────────────────────┘
//
// 握手载荷（identity_key 字段）与 PeerID 派生都使用此格式。

const (
	// 序列化头大小：1 字节类型 + 4 字节长度
	marshalHeaderSize = 5
)

// ============================================================================
//                              公钥序列化
// ============================================================================

// MarshalPublicKey 序列化公钥
//
// 返回格式：[Type(1)] [Length(4)] [Data(n)]
func MarshalPublicKey(key PublicKey) ([]byte, error) {
	if key == nil {
		return nil, ErrNilPublicKey
	}

	raw, err := key.Raw()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMarshalFailed, err)
	}

	buf := make([]byte, marshalHeaderSize+len(raw))
	buf[0] = byte(key.Type())
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(raw)))
	copy(buf[5:], raw)

	return buf, nil
}

// UnmarshalPublicKeyBytes 反序列化公钥
//
// 输入格式：[Type(1)] [Length(4)] [Data(n)]
// 只接受 Ed25519；其余类型返回 ErrBadKeyType。
func UnmarshalPublicKeyBytes(data []byte) (PublicKey, error) {
	if len(data) < marshalHeaderSize {
		return nil, fmt.Errorf("%w: data too short", ErrUnmarshalFailed)
	}

	keyType := KeyType(data[0])
	length := binary.BigEndian.Uint32(data[1:5])

	if int(length) != len(data)-marshalHeaderSize {
		return nil, fmt.Errorf("%w: length mismatch", ErrUnmarshalFailed)
	}

	switch keyType {
	case KeyTypeEd25519:
		return UnmarshalEd25519PublicKey(data[5:])
	default:
		return nil, fmt.Errorf("%w: %s", ErrBadKeyType, keyType)
	}
}

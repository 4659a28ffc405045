// Package rendezvous 包含 Rendezvous 协议消息的 protobuf 定义
//
// 字段编号与 libp2p rendezvous 规范的 rendezvous.proto 对齐，
// 保证与其他实现的互操作性。编解码为手写 protobuf wire format
// （与 pkg/lib/proto/noise 相同的做法），varint 使用
// multiformats/go-varint。
package rendezvous

import (
	"errors"
	"fmt"

	"github.com/multiformats/go-varint"
)

// ErrInvalidMessage 表示无效的消息数据
var ErrInvalidMessage = errors.New("invalid rendezvous message data")

// ============================================================================
//                              枚举
// ============================================================================

// MessageType 消息类型
type MessageType int32

const (
	Message_REGISTER          MessageType = 0
	Message_REGISTER_RESPONSE MessageType = 1
	Message_UNREGISTER        MessageType = 2
	Message_DISCOVER          MessageType = 3
	Message_DISCOVER_RESPONSE MessageType = 4
)

// String 返回消息类型名称
func (t MessageType) String() string {
	switch t {
	case Message_REGISTER:
		return "REGISTER"
	case Message_REGISTER_RESPONSE:
		return "REGISTER_RESPONSE"
	case Message_UNREGISTER:
		return "UNREGISTER"
	case Message_DISCOVER:
		return "DISCOVER"
	case Message_DISCOVER_RESPONSE:
		return "DISCOVER_RESPONSE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(t))
	}
}

// ResponseStatus 响应状态码
type ResponseStatus int32

const (
	Message_OK                  ResponseStatus = 0
	Message_E_INVALID_NAMESPACE ResponseStatus = 100
	Message_E_INVALID_PEER      ResponseStatus = 101
	Message_E_INVALID_TTL       ResponseStatus = 102
	Message_E_INVALID_COOKIE    ResponseStatus = 103
	Message_E_NOT_AUTHORIZED    ResponseStatus = 200
	Message_E_INTERNAL_ERROR    ResponseStatus = 300
	Message_E_UNAVAILABLE       ResponseStatus = 400
)

// String 返回状态码名称
func (s ResponseStatus) String() string {
	switch s {
	case Message_OK:
		return "OK"
	case Message_E_INVALID_NAMESPACE:
		return "E_INVALID_NAMESPACE"
	case Message_E_INVALID_PEER:
		return "E_INVALID_PEER"
	case Message_E_INVALID_TTL:
		return "E_INVALID_TTL"
	case Message_E_INVALID_COOKIE:
		return "E_INVALID_COOKIE"
	case Message_E_NOT_AUTHORIZED:
		return "E_NOT_AUTHORIZED"
	case Message_E_INTERNAL_ERROR:
		return "E_INTERNAL_ERROR"
	case Message_E_UNAVAILABLE:
		return "E_UNAVAILABLE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(s))
	}
}

// ============================================================================
//                              消息结构
// ============================================================================

// Message Rendezvous 协议消息（所有请求/响应的外层容器）
type Message struct {
	Type             MessageType               // field 1
	Register         *Message_Register         // field 2
	RegisterResponse *Message_RegisterResponse // field 3
	Unregister       *Message_Unregister       // field 4
	Discover         *Message_Discover         // field 5
	DiscoverResponse *Message_DiscoverResponse // field 6
}

// Message_Peer 节点描述（ID + 地址列表）
//
// 仅用于 DISCOVER_RESPONSE 下发；REGISTER 中携带的 id 会被服务端忽略，
// 身份始终取自连接握手。
type Message_Peer struct {
	Id    []byte   // field 1
	Addrs [][]byte // field 2, repeated
}

// Message_Register 注册请求
type Message_Register struct {
	Ns   string        // field 1
	Peer *Message_Peer // field 2
	Ttl  uint64        // field 3, 秒
}

// Message_RegisterResponse 注册响应
type Message_RegisterResponse struct {
	Status     ResponseStatus // field 1
	StatusText string         // field 2
	Ttl        uint64         // field 3, 实际授予的 TTL（秒）
}

// Message_Unregister 取消注册请求
type Message_Unregister struct {
	Ns string // field 1
	Id []byte // field 2（忽略，身份取自连接）
}

// Message_Discover 发现请求
type Message_Discover struct {
	Ns     string // field 1，空串表示所有命名空间
	Limit  uint64 // field 2
	Cookie []byte // field 3，分页游标
}

// Message_Registration 发现响应中的单条注册记录
type Message_Registration struct {
	Ns   string        // field 1
	Peer *Message_Peer // field 2
	Ttl  uint64        // field 3, 剩余 TTL（秒）
}

// Message_DiscoverResponse 发现响应
type Message_DiscoverResponse struct {
	Registrations []*Message_Registration // field 1, repeated
	Cookie        []byte                  // field 2
	Status        ResponseStatus          // field 3
	StatusText    string                  // field 4
}

// ============================================================================
//                              编码辅助
// ============================================================================

// appendVarintField 追加 varint 字段（wire type 0）
func appendVarintField(buf []byte, fieldNum int, v uint64) []byte {
	if v == 0 {
		return buf
	}
	buf = append(buf, byte(fieldNum<<3))
	return append(buf, varint.ToUvarint(v)...)
}

// appendBytesField 追加 length-delimited 标量字段（wire type 2）
//
// 零值（空 bytes/string）按 proto3 规则省略。
func appendBytesField(buf []byte, fieldNum int, data []byte) []byte {
	if len(data) == 0 {
		return buf
	}
	return appendMessageField(buf, fieldNum, data)
}

// appendMessageField 追加嵌套消息字段（wire type 2）
//
// 消息字段按存在性编码：指针非 nil 即写入，
// 即使消息体全为默认值、序列化为零长度。
func appendMessageField(buf []byte, fieldNum int, data []byte) []byte {
	buf = append(buf, byte(fieldNum<<3|2))
	buf = append(buf, varint.ToUvarint(uint64(len(data)))...)
	return append(buf, data...)
}

// field 解码后的单个字段
type field struct {
	num  int
	vint uint64 // wire type 0
	data []byte // wire type 2
}

// walkFields 遍历 protobuf wire format 字段
//
// 未知字段编号交由回调静默忽略（向前兼容）；
// 不支持的 wire type 视为非法消息。
func walkFields(data []byte, fn func(f field) error) error {
	for len(data) > 0 {
		tag, n, err := varint.FromUvarint(data)
		if err != nil {
			return ErrInvalidMessage
		}
		data = data[n:]

		f := field{num: int(tag >> 3)}
		switch tag & 0x07 {
		case 0: // varint
			v, n, err := varint.FromUvarint(data)
			if err != nil {
				return ErrInvalidMessage
			}
			f.vint = v
			data = data[n:]
		case 2: // length-delimited
			length, n, err := varint.FromUvarint(data)
			if err != nil {
				return ErrInvalidMessage
			}
			data = data[n:]
			if length > uint64(len(data)) {
				return ErrInvalidMessage
			}
			f.data = data[:length]
			data = data[length:]
		default:
			return ErrInvalidMessage
		}

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
//                              Message 编解码
// ============================================================================

// Marshal 序列化 Message
func (m *Message) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = appendVarintField(buf, 1, uint64(m.Type))

	if m.Register != nil {
		buf = appendMessageField(buf, 2, m.Register.marshal())
	}
	if m.RegisterResponse != nil {
		buf = appendMessageField(buf, 3, m.RegisterResponse.marshal())
	}
	if m.Unregister != nil {
		buf = appendMessageField(buf, 4, m.Unregister.marshal())
	}
	if m.Discover != nil {
		buf = appendMessageField(buf, 5, m.Discover.marshal())
	}
	if m.DiscoverResponse != nil {
		buf = appendMessageField(buf, 6, m.DiscoverResponse.marshal())
	}
	return buf, nil
}

// Unmarshal 反序列化 Message
func (m *Message) Unmarshal(data []byte) error {
	return walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Type = MessageType(f.vint)
		case 2:
			m.Register = &Message_Register{}
			return m.Register.unmarshal(f.data)
		case 3:
			m.RegisterResponse = &Message_RegisterResponse{}
			return m.RegisterResponse.unmarshal(f.data)
		case 4:
			m.Unregister = &Message_Unregister{}
			return m.Unregister.unmarshal(f.data)
		case 5:
			m.Discover = &Message_Discover{}
			return m.Discover.unmarshal(f.data)
		case 6:
			m.DiscoverResponse = &Message_DiscoverResponse{}
			return m.DiscoverResponse.unmarshal(f.data)
		}
		return nil
	})
}

// ============================================================================
//                              子消息编解码
// ============================================================================

func (p *Message_Peer) marshal() []byte {
	buf := make([]byte, 0, 64)
	buf = appendBytesField(buf, 1, p.Id)
	for _, a := range p.Addrs {
		buf = appendBytesField(buf, 2, a)
	}
	return buf
}

func (p *Message_Peer) unmarshal(data []byte) error {
	return walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			p.Id = append([]byte(nil), f.data...)
		case 2:
			p.Addrs = append(p.Addrs, append([]byte(nil), f.data...))
		}
		return nil
	})
}

func (r *Message_Register) marshal() []byte {
	buf := make([]byte, 0, 64)
	buf = appendBytesField(buf, 1, []byte(r.Ns))
	if r.Peer != nil {
		buf = appendMessageField(buf, 2, r.Peer.marshal())
	}
	buf = appendVarintField(buf, 3, r.Ttl)
	return buf
}

func (r *Message_Register) unmarshal(data []byte) error {
	return walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			r.Ns = string(f.data)
		case 2:
			r.Peer = &Message_Peer{}
			return r.Peer.unmarshal(f.data)
		case 3:
			r.Ttl = f.vint
		}
		return nil
	})
}

func (r *Message_RegisterResponse) marshal() []byte {
	buf := make([]byte, 0, 32)
	buf = appendVarintField(buf, 1, uint64(r.Status))
	buf = appendBytesField(buf, 2, []byte(r.StatusText))
	buf = appendVarintField(buf, 3, r.Ttl)
	return buf
}

func (r *Message_RegisterResponse) unmarshal(data []byte) error {
	return walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			r.Status = ResponseStatus(f.vint)
		case 2:
			r.StatusText = string(f.data)
		case 3:
			r.Ttl = f.vint
		}
		return nil
	})
}

func (u *Message_Unregister) marshal() []byte {
	buf := make([]byte, 0, 32)
	buf = appendBytesField(buf, 1, []byte(u.Ns))
	buf = appendBytesField(buf, 2, u.Id)
	return buf
}

func (u *Message_Unregister) unmarshal(data []byte) error {
	return walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			u.Ns = string(f.data)
		case 2:
			u.Id = append([]byte(nil), f.data...)
		}
		return nil
	})
}

func (d *Message_Discover) marshal() []byte {
	buf := make([]byte, 0, 32)
	buf = appendBytesField(buf, 1, []byte(d.Ns))
	buf = appendVarintField(buf, 2, d.Limit)
	buf = appendBytesField(buf, 3, d.Cookie)
	return buf
}

func (d *Message_Discover) unmarshal(data []byte) error {
	return walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			d.Ns = string(f.data)
		case 2:
			d.Limit = f.vint
		case 3:
			d.Cookie = append([]byte(nil), f.data...)
		}
		return nil
	})
}

func (r *Message_Registration) marshal() []byte {
	buf := make([]byte, 0, 64)
	buf = appendBytesField(buf, 1, []byte(r.Ns))
	if r.Peer != nil {
		buf = appendMessageField(buf, 2, r.Peer.marshal())
	}
	buf = appendVarintField(buf, 3, r.Ttl)
	return buf
}

func (r *Message_Registration) unmarshal(data []byte) error {
	return walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			r.Ns = string(f.data)
		case 2:
			r.Peer = &Message_Peer{}
			return r.Peer.unmarshal(f.data)
		case 3:
			r.Ttl = f.vint
		}
		return nil
	})
}

func (d *Message_DiscoverResponse) marshal() []byte {
	buf := make([]byte, 0, 128)
	for _, reg := range d.Registrations {
		buf = appendMessageField(buf, 1, reg.marshal())
	}
	buf = appendBytesField(buf, 2, d.Cookie)
	buf = appendVarintField(buf, 3, uint64(d.Status))
	buf = appendBytesField(buf, 4, []byte(d.StatusText))
	return buf
}

func (d *Message_DiscoverResponse) unmarshal(data []byte) error {
	return walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			reg := &Message_Registration{}
			if err := reg.unmarshal(f.data); err != nil {
				return err
			}
			d.Registrations = append(d.Registrations, reg)
		case 2:
			d.Cookie = append([]byte(nil), f.data...)
		case 3:
			d.Status = ResponseStatus(f.vint)
		case 4:
			d.StatusText = string(f.data)
		}
		return nil
	})
}

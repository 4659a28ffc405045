package rendezvous

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/multiformats/go-varint"

	pb "github.com/dep2p/go-rendezvous/pkg/lib/proto/rendezvous"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

// ProtocolID Rendezvous 协议的流协议标识
const ProtocolID = types.ProtocolID("/rendezvous/1.0.0")

// MaxMessageSize 单条协议消息上限
const MaxMessageSize = 1 << 20

// ============================================================================
// 帧编解码
// ============================================================================
//
// 每条消息以 uvarint 长度为前缀。读取端逐字节读 varint，
// 不会越界消费流中的后续数据。

// byteReader 逐字节读取，供 varint 解析用
type byteReader struct {
	r io.Reader
}

func (b byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(b.r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// WriteMessage 写入一条带长度前缀的消息
func WriteMessage(w io.Writer, msg *pb.Message) error {
	data, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if len(data) > MaxMessageSize {
		return ErrMessageTooLarge
	}

	buf := append(varint.ToUvarint(uint64(len(data))), data...)
	_, err = w.Write(buf)
	return err
}

// ReadMessage 读取一条带长度前缀的消息
//
// 声明长度超过 MaxMessageSize 时返回 ErrMessageTooLarge，
// 不读取消息体。
func ReadMessage(r io.Reader) (*pb.Message, error) {
	length, err := varint.ReadUvarint(byteReader{r})
	if err != nil {
		return nil, err
	}
	if length > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}

	msg := &pb.Message{}
	if err := msg.Unmarshal(data); err != nil {
		return nil, err
	}
	return msg, nil
}

// ============================================================================
// 请求构造
// ============================================================================

func newRegisterMessage(ns string, addrs []types.Multiaddr, ttl time.Duration) *pb.Message {
	addrBytes := make([][]byte, len(addrs))
	for i, a := range addrs {
		addrBytes[i] = []byte(a)
	}
	return &pb.Message{
		Type: pb.Message_REGISTER,
		Register: &pb.Message_Register{
			Ns:   ns,
			Peer: &pb.Message_Peer{Addrs: addrBytes},
			Ttl:  uint64(ttl / time.Second),
		},
	}
}

func newUnregisterMessage(ns string) *pb.Message {
	return &pb.Message{
		Type:       pb.Message_UNREGISTER,
		Unregister: &pb.Message_Unregister{Ns: ns},
	}
}

func newDiscoverMessage(ns string, cookie []byte, limit int) *pb.Message {
	return &pb.Message{
		Type: pb.Message_DISCOVER,
		Discover: &pb.Message_Discover{
			Ns:     ns,
			Limit:  uint64(limit),
			Cookie: cookie,
		},
	}
}

// ============================================================================
// 响应构造
// ============================================================================

func newRegisterResponse(ttl time.Duration) *pb.Message {
	return &pb.Message{
		Type: pb.Message_REGISTER_RESPONSE,
		RegisterResponse: &pb.Message_RegisterResponse{
			Status: pb.Message_OK,
			Ttl:    uint64(ttl / time.Second),
		},
	}
}

func newRegisterErrorResponse(status pb.ResponseStatus, text string) *pb.Message {
	return &pb.Message{
		Type: pb.Message_REGISTER_RESPONSE,
		RegisterResponse: &pb.Message_RegisterResponse{
			Status:     status,
			StatusText: text,
		},
	}
}

func newUnregisterResponse() *pb.Message {
	// 注销总是成功（幂等），响应只携带 OK 状态
	return &pb.Message{
		Type: pb.Message_REGISTER_RESPONSE,
		RegisterResponse: &pb.Message_RegisterResponse{
			Status: pb.Message_OK,
		},
	}
}

func newDiscoverResponse(regs []Registration, cookie []byte, now time.Time) *pb.Message {
	pbRegs := make([]*pb.Message_Registration, len(regs))
	for i, reg := range regs {
		addrBytes := make([][]byte, len(reg.Addrs))
		for j, a := range reg.Addrs {
			addrBytes[j] = []byte(a)
		}
		remaining := reg.Deadline.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		pbRegs[i] = &pb.Message_Registration{
			Ns: reg.Namespace,
			Peer: &pb.Message_Peer{
				Id:    []byte(reg.Peer),
				Addrs: addrBytes,
			},
			Ttl: uint64(remaining / time.Second),
		}
	}
	return &pb.Message{
		Type: pb.Message_DISCOVER_RESPONSE,
		DiscoverResponse: &pb.Message_DiscoverResponse{
			Registrations: pbRegs,
			Cookie:        cookie,
			Status:        pb.Message_OK,
		},
	}
}

func newDiscoverErrorResponse(status pb.ResponseStatus, text string) *pb.Message {
	return &pb.Message{
		Type: pb.Message_DISCOVER_RESPONSE,
		DiscoverResponse: &pb.Message_DiscoverResponse{
			Status:     status,
			StatusText: text,
		},
	}
}

// statusForError 把注册表错误映射为协议状态码
func statusForError(err error) (pb.ResponseStatus, string) {
	switch {
	case errors.Is(err, ErrInvalidNamespace):
		return pb.Message_E_INVALID_NAMESPACE, "invalid namespace"
	case errors.Is(err, ErrInvalidAddrs), errors.Is(err, ErrInvalidPeer):
		return pb.Message_E_INVALID_PEER, "invalid peer or addresses"
	case errors.Is(err, ErrInvalidCookie):
		return pb.Message_E_INVALID_COOKIE, "invalid cookie"
	case errors.Is(err, ErrThrottled):
		return pb.Message_E_NOT_AUTHORIZED, "too many registrations"
	case errors.Is(err, ErrStoreClosed):
		return pb.Message_E_UNAVAILABLE, "service shutting down"
	default:
		return pb.Message_E_INTERNAL_ERROR, "internal error"
	}
}

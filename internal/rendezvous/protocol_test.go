package rendezvous

import (
	"bytes"
	"testing"
	"time"

	"github.com/multiformats/go-varint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pb "github.com/dep2p/go-rendezvous/pkg/lib/proto/rendezvous"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

// TestMessageFraming 测试带长度前缀的消息读写
func TestMessageFraming(t *testing.T) {
	var buf bytes.Buffer

	req := newRegisterMessage("chat", []types.Multiaddr{"/ip4/1.2.3.4/tcp/80"}, 30*time.Second)
	require.NoError(t, WriteMessage(&buf, req))

	msg, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, pb.Message_REGISTER, msg.Type)
	require.NotNil(t, msg.Register)
	assert.Equal(t, "chat", msg.Register.Ns)
	assert.Equal(t, uint64(30), msg.Register.Ttl)
}

// TestMultipleMessagesOnStream 测试连续读取不越界消费
func TestMultipleMessagesOnStream(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteMessage(&buf, newUnregisterMessage("a")))
	require.NoError(t, WriteMessage(&buf, newUnregisterMessage("b")))

	msg1, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, "a", msg1.Unregister.Ns)

	msg2, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, "b", msg2.Unregister.Ns)
}

// TestOversizedMessage 测试超限消息被拒绝
func TestOversizedMessage(t *testing.T) {
	// 声明超大长度的帧头
	var buf bytes.Buffer
	buf.Write(varint.ToUvarint(MaxMessageSize + 1))

	_, err := ReadMessage(&buf)
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

// TestMalformedMessage 测试畸形消息体
func TestMalformedMessage(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{0x09, 1, 2, 3, 4, 5, 6, 7, 8} // 不支持的 wire type
	buf.Write(varint.ToUvarint(uint64(len(payload))))
	buf.Write(payload)

	_, err := ReadMessage(&buf)
	assert.Error(t, err)
}

// TestStatusForError 测试错误到状态码的映射
func TestStatusForError(t *testing.T) {
	cases := []struct {
		err    error
		status pb.ResponseStatus
	}{
		{ErrInvalidNamespace, pb.Message_E_INVALID_NAMESPACE},
		{ErrInvalidAddrs, pb.Message_E_INVALID_PEER},
		{ErrInvalidPeer, pb.Message_E_INVALID_PEER},
		{ErrInvalidCookie, pb.Message_E_INVALID_COOKIE},
		{ErrThrottled, pb.Message_E_NOT_AUTHORIZED},
		{ErrStoreClosed, pb.Message_E_UNAVAILABLE},
		{assert.AnError, pb.Message_E_INTERNAL_ERROR},
	}
	for _, tc := range cases {
		status, text := statusForError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.NotEmpty(t, text)
	}
}

// TestDiscoverResponseRemainingTTL 测试发现响应携带剩余 TTL
func TestDiscoverResponseRemainingTTL(t *testing.T) {
	now := time.Now()
	regs := []Registration{{
		Peer:      "peer-1",
		Namespace: "ns",
		Addrs:     testAddrs,
		Deadline:  now.Add(90 * time.Second),
	}}

	msg := newDiscoverResponse(regs, encodeCookie(7), now)
	require.Len(t, msg.DiscoverResponse.Registrations, 1)
	assert.Equal(t, uint64(90), msg.DiscoverResponse.Registrations[0].Ttl)
	assert.Equal(t, encodeCookie(7), msg.DiscoverResponse.Cookie)
}

package rendezvous

import (
	"bytes"
	"testing"
)

// TestRegisterRoundTrip 测试注册消息编解码
func TestRegisterRoundTrip(t *testing.T) {
	msg := &Message{
		Type: Message_REGISTER,
		Register: &Message_Register{
			Ns: "example/app",
			Peer: &Message_Peer{
				Id:    []byte("peer-id-bytes"),
				Addrs: [][]byte{[]byte("/ip4/1.2.3.4/tcp/4001"), []byte("/ip6/::1/tcp/4001")},
			},
			Ttl: 7200,
		},
	}

	data, err := msg.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded Message
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.Type != Message_REGISTER {
		t.Errorf("Type = %v, want REGISTER", decoded.Type)
	}
	if decoded.Register == nil {
		t.Fatal("Register is nil")
	}
	if decoded.Register.Ns != "example/app" || decoded.Register.Ttl != 7200 {
		t.Errorf("Register = %+v", decoded.Register)
	}
	if !bytes.Equal(decoded.Register.Peer.Id, []byte("peer-id-bytes")) {
		t.Error("peer id mismatch")
	}
	if len(decoded.Register.Peer.Addrs) != 2 {
		t.Errorf("addrs count = %d, want 2", len(decoded.Register.Peer.Addrs))
	}
}

// TestDiscoverResponseRoundTrip 测试发现响应编解码
func TestDiscoverResponseRoundTrip(t *testing.T) {
	msg := &Message{
		Type: Message_DISCOVER_RESPONSE,
		DiscoverResponse: &Message_DiscoverResponse{
			Registrations: []*Message_Registration{
				{Ns: "ns-a", Peer: &Message_Peer{Id: []byte("p1")}, Ttl: 60},
				{Ns: "ns-b", Peer: &Message_Peer{Id: []byte("p2")}, Ttl: 120},
			},
			Cookie: []byte{0, 0, 0, 0, 0, 0, 0, 42},
			Status: Message_OK,
		},
	}

	data, err := msg.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	var decoded Message
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatal(err)
	}

	resp := decoded.DiscoverResponse
	if resp == nil {
		t.Fatal("DiscoverResponse is nil")
	}
	if len(resp.Registrations) != 2 {
		t.Fatalf("registrations = %d, want 2", len(resp.Registrations))
	}
	if resp.Registrations[1].Ns != "ns-b" || resp.Registrations[1].Ttl != 120 {
		t.Errorf("registration[1] = %+v", resp.Registrations[1])
	}
	if !bytes.Equal(resp.Cookie, []byte{0, 0, 0, 0, 0, 0, 0, 42}) {
		t.Error("cookie mismatch")
	}
}

// TestErrorResponse 测试错误状态码编解码
func TestErrorResponse(t *testing.T) {
	msg := &Message{
		Type: Message_REGISTER_RESPONSE,
		RegisterResponse: &Message_RegisterResponse{
			Status:     Message_E_INVALID_NAMESPACE,
			StatusText: "namespace too long",
		},
	}

	data, err := msg.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	var decoded Message
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatal(err)
	}

	if decoded.RegisterResponse.Status != Message_E_INVALID_NAMESPACE {
		t.Errorf("Status = %v", decoded.RegisterResponse.Status)
	}
	if decoded.RegisterResponse.StatusText != "namespace too long" {
		t.Errorf("StatusText = %q", decoded.RegisterResponse.StatusText)
	}
}

// TestEmptySubmessagePresence 测试全默认值子消息保留存在性
//
// 成功的注销确认就是这种消息：REGISTER_RESPONSE 且 Status=OK，
// 子消息体序列化为零长度，但字段本身必须上线。
func TestEmptySubmessagePresence(t *testing.T) {
	msg := &Message{
		Type:             Message_REGISTER_RESPONSE,
		RegisterResponse: &Message_RegisterResponse{Status: Message_OK},
	}

	data, err := msg.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	var decoded Message
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatal(err)
	}

	if decoded.Type != Message_REGISTER_RESPONSE {
		t.Errorf("Type = %v, want REGISTER_RESPONSE", decoded.Type)
	}
	if decoded.RegisterResponse == nil {
		t.Fatal("RegisterResponse is nil after round trip")
	}
	if decoded.RegisterResponse.Status != Message_OK {
		t.Errorf("Status = %v, want OK", decoded.RegisterResponse.Status)
	}
}

// TestUnmarshalInvalid 测试非法数据
func TestUnmarshalInvalid(t *testing.T) {
	var msg Message

	// 长度超出剩余数据
	if err := msg.Unmarshal([]byte{0x12, 0xff, 0x01}); err == nil {
		t.Error("expected error for truncated field")
	}

	// 不支持的 wire type (fixed64)
	if err := msg.Unmarshal([]byte{0x09, 1, 2, 3, 4, 5, 6, 7, 8}); err == nil {
		t.Error("expected error for unsupported wire type")
	}

	// 未知字段编号被静默忽略
	if err := msg.Unmarshal([]byte{0x78, 0x05}); err != nil {
		t.Errorf("unknown field should be ignored: %v", err)
	}
}

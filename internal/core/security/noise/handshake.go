package noise

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"filippo.io/edwards25519"
	"github.com/flynn/noise"

	"github.com/dep2p/go-rendezvous/pkg/lib/crypto"
	noisepb "github.com/dep2p/go-rendezvous/pkg/lib/proto/noise"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

// payloadSigPrefix 是 payload 签名的前缀，与 libp2p-noise 规范兼容
const payloadSigPrefix = "noise-libp2p-static-key:"

// ============================================================================
// Noise XX 握手实现
// ============================================================================

// performHandshake 执行 Noise XX 握手
//
// XX 模式提供相互认证和前向保密。身份认证通过 payload 中的
// Ed25519 公钥及其对 Curve25519 静态公钥的签名完成。
func performHandshake(conn net.Conn, privKey crypto.PrivateKey, remotePeer types.PeerID, isInitiator bool) (*Conn, error) {
	// 1. 密钥转换：Ed25519 -> Curve25519
	privKeyBytes, err := privKey.Raw()
	if err != nil {
		return nil, fmt.Errorf("get private key bytes: %w", err)
	}

	pubKeyBytes, err := privKey.GetPublic().Raw()
	if err != nil {
		return nil, fmt.Errorf("get public key bytes: %w", err)
	}

	curve25519Priv := ed25519ToCurve25519Private(privKeyBytes)
	curve25519Pub := ed25519ToCurve25519Public(pubKeyBytes)

	// 2. 创建 Noise 握手状态
	cs := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cs,
		Pattern:       noise.HandshakeXX,
		Initiator:     isInitiator,
		StaticKeypair: noise.DHKey{Private: curve25519Priv, Public: curve25519Pub},
	})
	if err != nil {
		return nil, fmt.Errorf("create handshake state: %w", err)
	}

	// 3. 生成本地 payload
	localPayload, err := generateHandshakePayload(privKey, curve25519Pub)
	if err != nil {
		return nil, fmt.Errorf("generate handshake payload: %w", err)
	}

	// 4. 执行握手
	var sendCS, recvCS *noise.CipherState
	var remotePayload []byte

	if isInitiator {
		sendCS, recvCS, remotePayload, err = initiatorHandshake(conn, hs, localPayload)
	} else {
		sendCS, recvCS, remotePayload, err = responderHandshake(conn, hs, localPayload)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandshake, err)
	}

	// 5. 验证远程 payload 并提取身份
	remoteStatic := hs.PeerStatic()
	if len(remoteStatic) != 32 {
		return nil, fmt.Errorf("%w: remote static key length %d", ErrInvalidHandshake, len(remoteStatic))
	}

	remoteKeyBytes, actualRemotePeer, err := verifyRemotePayload(remotePayload, remoteStatic)
	if err != nil {
		return nil, err
	}

	if !remotePeer.IsEmpty() && actualRemotePeer != remotePeer {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrPeerIDMismatch, remotePeer, actualRemotePeer)
	}

	// 6. 派生本地 PeerID
	localPeer, err := crypto.PeerIDFromPrivateKey(privKey)
	if err != nil {
		return nil, fmt.Errorf("derive local peer id: %w", err)
	}

	return &Conn{
		Conn:         conn,
		sendCS:       sendCS,
		recvCS:       recvCS,
		localPeer:    localPeer,
		remotePeer:   actualRemotePeer,
		remotePubKey: remoteKeyBytes,
	}, nil
}

// generateHandshakePayload 生成握手 payload
//
// identity_sig = Sign("noise-libp2p-static-key:" + curve25519_static_pubkey)
func generateHandshakePayload(privKey crypto.PrivateKey, curve25519Pub []byte) ([]byte, error) {
	identityKey, err := crypto.MarshalPublicKey(privKey.GetPublic())
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}

	toSign := append([]byte(payloadSigPrefix), curve25519Pub...)
	signature, err := privKey.Sign(toSign)
	if err != nil {
		return nil, fmt.Errorf("sign payload: %w", err)
	}

	payload := &noisepb.NoiseHandshakePayload{
		IdentityKey: identityKey,
		IdentitySig: signature,
	}
	return payload.Marshal()
}

// verifyRemotePayload 验证远程 payload
//
// 验证签名把对端的 Noise 静态公钥绑定到其 Ed25519 身份公钥，
// 返回序列化的身份公钥与派生的 PeerID。
func verifyRemotePayload(payloadBytes []byte, remoteStatic []byte) ([]byte, types.PeerID, error) {
	payload := &noisepb.NoiseHandshakePayload{}
	if err := payload.Unmarshal(payloadBytes); err != nil {
		return nil, types.EmptyPeerID, fmt.Errorf("unmarshal payload: %w", err)
	}

	remotePubKey, err := crypto.UnmarshalPublicKeyBytes(payload.IdentityKey)
	if err != nil {
		return nil, types.EmptyPeerID, fmt.Errorf("unmarshal remote public key: %w", err)
	}

	toVerify := append([]byte(payloadSigPrefix), remoteStatic...)
	valid, err := remotePubKey.Verify(toVerify, payload.IdentitySig)
	if err != nil {
		return nil, types.EmptyPeerID, fmt.Errorf("verify signature: %w", err)
	}
	if !valid {
		return nil, types.EmptyPeerID, ErrInvalidSignature
	}

	peerID, err := crypto.PeerIDFromPublicKey(remotePubKey)
	if err != nil {
		return nil, types.EmptyPeerID, fmt.Errorf("derive peer id: %w", err)
	}

	return payload.IdentityKey, peerID, nil
}

// ============================================================================
// 握手流程
// ============================================================================

// initiatorHandshake 发起者握手
//
//  1. -> e
//  2. <- e, ee, s, es, payload
//  3. -> s, se, payload
func initiatorHandshake(conn net.Conn, hs *noise.HandshakeState, localPayload []byte) (*noise.CipherState, *noise.CipherState, []byte, error) {
	msg1, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 1: %w", err)
	}
	if err := writeFrame(conn, msg1); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 1: %w", err)
	}

	msg2, err := readFrame(conn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 2: %w", err)
	}
	remotePayload, _, _, err := hs.ReadMessage(nil, msg2)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read message 2: %w", err)
	}

	msg3, cs1, cs2, err := hs.WriteMessage(nil, localPayload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 3: %w", err)
	}
	if err := writeFrame(conn, msg3); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 3: %w", err)
	}

	// 发起者：cs1 = 发送，cs2 = 接收
	return cs1, cs2, remotePayload, nil
}

// responderHandshake 响应者握手
//
//  1. <- e
//  2. -> e, ee, s, es, payload
//  3. <- s, se, payload
func responderHandshake(conn net.Conn, hs *noise.HandshakeState, localPayload []byte) (*noise.CipherState, *noise.CipherState, []byte, error) {
	msg1, err := readFrame(conn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 1: %w", err)
	}
	if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
		return nil, nil, nil, fmt.Errorf("read message 1: %w", err)
	}

	msg2, _, _, err := hs.WriteMessage(nil, localPayload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 2: %w", err)
	}
	if err := writeFrame(conn, msg2); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 2: %w", err)
	}

	msg3, err := readFrame(conn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 3: %w", err)
	}
	remotePayload, cs1, cs2, err := hs.ReadMessage(nil, msg3)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read message 3: %w", err)
	}

	// 响应者：cs1 = 接收，cs2 = 发送（与发起者相反）
	return cs2, cs1, remotePayload, nil
}

// ============================================================================
// 密钥转换
// ============================================================================

// ed25519ToCurve25519Private 将 Ed25519 私钥转换为 Curve25519 私钥
//
// 标准转换（RFC 7748, RFC 8032）：对种子做 SHA-512，
// 取前 32 字节并 clamping。
func ed25519ToCurve25519Private(edPriv []byte) []byte {
	var seed []byte

	switch len(edPriv) {
	case ed25519.PrivateKeySize: // 64 字节：标准私钥格式
		seed = edPriv[:32]
	case ed25519.SeedSize: // 32 字节：种子格式
		seed = edPriv
	default:
		return make([]byte, 32)
	}

	h := sha512.Sum512(seed)

	// Clamping（RFC 7748）
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64

	return h[:32]
}

// ed25519ToCurve25519Public 将 Ed25519 公钥转换为 Curve25519 公钥
//
// Edwards -> Montgomery 转换：u = (1 + y) / (1 - y) (mod p)
func ed25519ToCurve25519Public(edPub []byte) []byte {
	if len(edPub) != ed25519.PublicKeySize {
		return make([]byte, 32)
	}

	point, err := new(edwards25519.Point).SetBytes(edPub)
	if err != nil {
		return make([]byte, 32)
	}

	return point.BytesMontgomery()
}

// ============================================================================
// 帧读写
// ============================================================================

// writeFrame 写入帧（2 字节大端长度 + 数据）
func writeFrame(w io.Writer, data []byte) error {
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(len(data)))

	if _, err := w.Write(lenBuf); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// readFrame 读取帧（2 字节大端长度 + 数据）
func readFrame(r io.Reader) ([]byte, error) {
	lenBuf := make([]byte, 2)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint16(lenBuf)
	if length == 0 {
		return nil, nil
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

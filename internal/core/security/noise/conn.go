package noise

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/flynn/noise"

	"github.com/dep2p/go-rendezvous/pkg/types"
)

// ============================================================================
// 安全连接
// ============================================================================

// Conn Noise 安全连接
//
// 握手完成后的连接，Read/Write 透明加解密。
// 每条加密消息以 2 字节大端长度为前缀。
type Conn struct {
	net.Conn

	sendCS *noise.CipherState
	recvCS *noise.CipherState

	localPeer  types.PeerID
	remotePeer types.PeerID

	// 握手验证过的对端身份公钥（序列化格式）
	remotePubKey []byte

	readMu  sync.Mutex
	writeMu sync.Mutex

	// 上一条消息未读完的明文
	readBuf []byte
}

var _ net.Conn = (*Conn)(nil)

// noiseMaxPlaintext 单条 Noise 消息的明文上限
// （64KB 帧长减去 AEAD tag 的 16 字节）
const noiseMaxPlaintext = 65535 - 16

// Read 从连接读取数据（解密）
func (c *Conn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if len(c.readBuf) > 0 {
		n := copy(p, c.readBuf)
		c.readBuf = c.readBuf[n:]
		return n, nil
	}

	encMsg, err := readFrame(c.Conn)
	if err != nil {
		return 0, err
	}
	if len(encMsg) == 0 {
		return 0, io.EOF
	}

	plaintext, err := c.recvCS.Decrypt(nil, nil, encMsg)
	if err != nil {
		return 0, fmt.Errorf("decrypt: %w", err)
	}

	n := copy(p, plaintext)
	if n < len(plaintext) {
		c.readBuf = append(c.readBuf[:0], plaintext[n:]...)
	}
	return n, nil
}

// Write 向连接写入数据（加密）
//
// 超过单条消息上限的数据拆分为多条加密消息。
func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > noiseMaxPlaintext {
			chunk = chunk[:noiseMaxPlaintext]
		}

		ciphertext, err := c.sendCS.Encrypt(nil, nil, chunk)
		if err != nil {
			return total, fmt.Errorf("encrypt: %w", err)
		}

		lenBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(lenBuf, uint16(len(ciphertext)))
		if _, err := c.Conn.Write(lenBuf); err != nil {
			return total, err
		}
		if _, err := c.Conn.Write(ciphertext); err != nil {
			return total, err
		}

		total += len(chunk)
		p = p[len(chunk):]
	}
	return total, nil
}

// LocalPeer 返回本地节点 ID
func (c *Conn) LocalPeer() types.PeerID {
	return c.localPeer
}

// RemotePeer 返回握手验证过的远端节点 ID
func (c *Conn) RemotePeer() types.PeerID {
	return c.remotePeer
}

// RemotePublicKey 返回远端身份公钥（序列化格式）
func (c *Conn) RemotePublicKey() []byte {
	return c.remotePubKey
}

package noise

import "errors"

var (
	// ErrInvalidHandshake 握手失败
	ErrInvalidHandshake = errors.New("noise: invalid handshake")

	// ErrPeerIDMismatch 实际对端身份与期望不符
	ErrPeerIDMismatch = errors.New("noise: peer ID mismatch")

	// ErrInvalidSignature payload 签名验证失败
	ErrInvalidSignature = errors.New("noise: invalid identity signature")

	// ErrNilConn 底层连接为空
	ErrNilConn = errors.New("noise: conn is nil")

	// ErrNilPrivateKey 本地私钥为空
	ErrNilPrivateKey = errors.New("noise: private key is nil")
)

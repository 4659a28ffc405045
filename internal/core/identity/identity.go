// Package identity 管理节点身份
//
// 身份是一对 Ed25519 密钥与由公钥派生的 PeerID。
// 所有安全握手与事件中的节点标识都来自这里。
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/dep2p/go-rendezvous/pkg/lib/crypto"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

var (
	// ErrInvalidSeed 种子格式错误
	ErrInvalidSeed = errors.New("identity: invalid seed")
)

// Identity 节点身份
type Identity struct {
	privKey crypto.PrivateKey
	pubKey  crypto.PublicKey
	peerID  types.PeerID
}

// Generate 生成随机身份
func Generate() (*Identity, error) {
	priv, pub, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return fromKeys(priv, pub)
}

// FromSeed 从 32 字节种子派生确定性身份
func FromSeed(seed []byte) (*Identity, error) {
	priv, pub, err := crypto.Ed25519KeyFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	return fromKeys(priv, pub)
}

// FromSeedHex 从十六进制编码的种子派生身份
//
// 用于从命令行或配置文件加载固定身份。
func FromSeedHex(seedHex string) (*Identity, error) {
	seed, err := hex.DecodeString(strings.TrimSpace(seedHex))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	return FromSeed(seed)
}

func fromKeys(priv crypto.PrivateKey, pub crypto.PublicKey) (*Identity, error) {
	peerID, err := crypto.PeerIDFromPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("derive peer id: %w", err)
	}
	return &Identity{
		privKey: priv,
		pubKey:  pub,
		peerID:  peerID,
	}, nil
}

// PrivateKey 返回私钥
func (id *Identity) PrivateKey() crypto.PrivateKey {
	return id.privKey
}

// PublicKey 返回公钥
func (id *Identity) PublicKey() crypto.PublicKey {
	return id.pubKey
}

// PeerID 返回节点 ID
func (id *Identity) PeerID() types.PeerID {
	return id.peerID
}

// String 返回可读描述
func (id *Identity) String() string {
	return fmt.Sprintf("Identity(%s)", id.peerID.ShortString())
}

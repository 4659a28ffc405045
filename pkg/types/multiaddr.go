package types

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ============================================================================
//                              Multiaddr - 统一地址类型
// ============================================================================

// Multiaddr 统一地址类型（值对象）
//
// Multiaddr 是本系统内部唯一的地址表示形式。
// 注册记录携带的所有网络端点必须是 Multiaddr 类型。
//
// 约束：
//   - String() 必须始终返回 canonical multiaddr（以 "/" 开头）
//
// 格式示例：
//   - /ip4/192.168.1.1/tcp/4001
//   - /ip6/::1/udp/4001/quic-v1
//   - /dns4/example.com/tcp/4001
type Multiaddr string

// Multiaddr 错误定义
var (
	// ErrInvalidMultiaddr 无效的 multiaddr 格式
	ErrInvalidMultiaddr = errors.New("invalid multiaddr format")

	// ErrEmptyMultiaddr 空 multiaddr
	ErrEmptyMultiaddr = errors.New("empty multiaddr")

	// ErrNotMultiaddrFormat 不是 multiaddr 格式（不以 / 开头）
	ErrNotMultiaddrFormat = errors.New("not multiaddr format: must start with /")

	// ErrMissingTransport 缺少传输协议
	ErrMissingTransport = errors.New("missing transport protocol")
)

// ============================================================================
//                              解析/构建
// ============================================================================

// ParseMultiaddr 解析并规范化 multiaddr
//
// 仅接受 multiaddr 格式输入（以 "/" 开头）。
//
// 示例：
//   - "/ip4/1.2.3.4/tcp/4001" → Multiaddr
//   - "1.2.3.4:4001" → error（不是 multiaddr 格式）
func ParseMultiaddr(s string) (Multiaddr, error) {
	if s == "" {
		return "", ErrEmptyMultiaddr
	}

	s = strings.TrimSpace(s)

	// 必须以 / 开头
	if !strings.HasPrefix(s, "/") {
		return "", ErrNotMultiaddrFormat
	}

	// 基本格式校验：检查是否包含有效的协议组件
	parts := strings.Split(s, "/")
	if len(parts) < 3 {
		return "", ErrInvalidMultiaddr
	}

	// 验证第一个组件是有效的网络类型
	firstComponent := parts[1]
	switch firstComponent {
	case "ip4", "ip6", "dns4", "dns6", "dnsaddr":
		// 有效的起始组件
	default:
		return "", fmt.Errorf("%w: unknown protocol %q", ErrInvalidMultiaddr, firstComponent)
	}

	// 地址必须带传输组件
	if !containsTransport(parts) {
		return "", ErrMissingTransport
	}

	return Multiaddr(s), nil
}

// MustParseMultiaddr 解析 multiaddr，失败时 panic
//
// 仅用于常量初始化或测试代码，生产代码应使用 ParseMultiaddr。
func MustParseMultiaddr(s string) Multiaddr {
	ma, err := ParseMultiaddr(s)
	if err != nil {
		panic(fmt.Sprintf("MustParseMultiaddr(%q): %v", s, err))
	}
	return ma
}

// containsTransport 检查组件中是否包含传输协议
func containsTransport(parts []string) bool {
	for i := 1; i < len(parts); i++ {
		switch parts[i] {
		case "tcp", "udp", "quic", "quic-v1", "ws", "wss":
			return true
		}
	}
	return false
}

// ============================================================================
//                              访问方法
// ============================================================================

// String 返回 canonical multiaddr 字符串
func (m Multiaddr) String() string {
	return string(m)
}

// IP 返回 IP 地址（如果可用）
func (m Multiaddr) IP() net.IP {
	if m.IsEmpty() {
		return nil
	}

	parts := strings.Split(string(m), "/")
	for i := 1; i < len(parts)-1; i++ {
		switch parts[i] {
		case "ip4", "ip6":
			return net.ParseIP(parts[i+1])
		}
	}
	return nil
}

// Port 返回端口号（如果可用）
func (m Multiaddr) Port() int {
	if m.IsEmpty() {
		return 0
	}

	parts := strings.Split(string(m), "/")
	for i := 1; i < len(parts)-1; i++ {
		switch parts[i] {
		case "tcp", "udp":
			port, err := strconv.Atoi(parts[i+1])
			if err == nil {
				return port
			}
		}
	}
	return 0
}

// Transport 返回传输协议
//
// 返回值: "quic-v1", "tcp", "udp", ""
func (m Multiaddr) Transport() string {
	if m.IsEmpty() {
		return ""
	}

	parts := strings.Split(string(m), "/")
	for i := len(parts) - 1; i >= 1; i-- {
		switch parts[i] {
		case "quic-v1", "quic", "tcp", "udp", "ws", "wss":
			return parts[i]
		}
	}
	return ""
}

// Bytes 返回地址的字节表示
func (m Multiaddr) Bytes() []byte {
	return []byte(m)
}

// ============================================================================
//                              判断方法
// ============================================================================

// IsEmpty 是否为空
func (m Multiaddr) IsEmpty() bool {
	return m == ""
}

// Equal 比较两个 Multiaddr 是否相等
func (m Multiaddr) Equal(other Multiaddr) bool {
	return m == other
}

// IsLoopback 是否是回环地址
func (m Multiaddr) IsLoopback() bool {
	ip := m.IP()
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}

// ============================================================================
//                              批量转换辅助函数
// ============================================================================

// MultiaddrsToStrings 将 Multiaddr 切片转换为字符串切片
func MultiaddrsToStrings(mas []Multiaddr) []string {
	strs := make([]string, len(mas))
	for i, ma := range mas {
		strs[i] = ma.String()
	}
	return strs
}

// ParseMultiaddrStrict 严格解析字符串切片为 Multiaddr 切片
//
// 遇到任何无法解析的地址立即返回错误。
// 保持输入顺序并去除重复地址。
func ParseMultiaddrStrict(strs []string) ([]Multiaddr, error) {
	mas := make([]Multiaddr, 0, len(strs))
	seen := make(map[Multiaddr]struct{}, len(strs))
	for i, s := range strs {
		ma, err := ParseMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid address at index %d: %w", i, err)
		}
		if _, dup := seen[ma]; dup {
			continue
		}
		seen[ma] = struct{}{}
		mas = append(mas, ma)
	}
	return mas, nil
}

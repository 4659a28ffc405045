package rendezvous

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-rendezvous/internal/core/eventbus"
	"github.com/dep2p/go-rendezvous/pkg/lib/log"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

var logger = log.Logger("rendezvous")

// ============================================================================
// 注册记录
// ============================================================================

// Registration 一条活跃注册
type Registration struct {
	Peer         types.PeerID
	Namespace    string
	Addrs        []types.Multiaddr
	TTL          time.Duration
	RegisteredAt time.Time
	Deadline     time.Time

	// Ordinal 创建/续期时分配的单调递增序号，分页按其排序
	Ordinal uint64
}

// regKey (peer, namespace) 复合键
type regKey struct {
	peer types.PeerID
	ns   string
}

// ============================================================================
// Store
// ============================================================================

// Store 注册表
//
// 注册表、命名空间索引与过期堆构成一个一致性单元，
// 由同一把锁守护：任何查询都不会观察到半应用的变更。
type Store struct {
	cfg   Config
	clock clock.Clock

	emitRegistered    *eventbus.Emitter
	emitNotRegistered *eventbus.Emitter
	emitUnregistered  *eventbus.Emitter
	emitExpired       *eventbus.Emitter
	emitDiscover      *eventbus.Emitter

	mu          sync.Mutex
	regs        map[regKey]*Registration
	index       map[string]map[types.PeerID]*Registration
	perPeer     map[types.PeerID]int
	expiries    expiryHeap
	nextOrdinal uint64
	closed      bool

	wakeCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewStore 创建注册表并启动过期调度
func NewStore(cfg Config, clk clock.Clock, bus *eventbus.Bus) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}

	s := &Store{
		cfg:     cfg,
		clock:   clk,
		regs:    make(map[regKey]*Registration),
		index:   make(map[string]map[types.PeerID]*Registration),
		perPeer: make(map[types.PeerID]int),
		wakeCh:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	var err error
	if s.emitRegistered, err = bus.Emitter(new(EvtPeerRegistered)); err != nil {
		return nil, err
	}
	if s.emitNotRegistered, err = bus.Emitter(new(EvtPeerNotRegistered)); err != nil {
		return nil, err
	}
	if s.emitUnregistered, err = bus.Emitter(new(EvtPeerUnregistered)); err != nil {
		return nil, err
	}
	if s.emitExpired, err = bus.Emitter(new(EvtRegistrationExpired)); err != nil {
		return nil, err
	}
	if s.emitDiscover, err = bus.Emitter(new(EvtDiscoverServed)); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.expiryLoop()

	return s, nil
}

// Close 停止过期调度并关闭注册表
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.done)
		s.wg.Wait()

		s.emitRegistered.Close()
		s.emitNotRegistered.Close()
		s.emitUnregistered.Close()
		s.emitExpired.Close()
		s.emitDiscover.Close()
	})
	return nil
}

// Len 返回当前活跃注册数
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.regs)
}

// Now 返回注册表时钟的当前时间
func (s *Store) Now() time.Time {
	return s.clock.Now()
}

// ============================================================================
// Register
// ============================================================================

// Register 注册或续期
//
// (peer, namespace) 已存在时原地覆盖并重置 TTL 时钟，
// 分配新的 ordinal；旧的过期定时器随之失效。
// requestedTTL 为 0 时使用默认值，否则钳制进 [MinTTL, MaxTTL]。
func (s *Store) Register(peer types.PeerID, ns string, addrs []types.Multiaddr, requestedTTL time.Duration) (Registration, error) {
	if err := peer.Validate(); err != nil {
		s.rejected(peer, ns, "invalid peer id")
		return Registration{}, fmt.Errorf("%w: %v", ErrInvalidPeer, err)
	}
	if err := s.validateNamespace(ns); err != nil {
		s.rejected(peer, ns, "invalid namespace")
		return Registration{}, err
	}
	cleanAddrs, err := validateAddrs(addrs, s.cfg.MaxAddrsPerRegistration)
	if err != nil {
		s.rejected(peer, ns, "invalid address")
		return Registration{}, err
	}

	ttl := s.clampTTL(requestedTTL)
	key := regKey{peer: peer, ns: ns}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Registration{}, ErrStoreClosed
	}

	_, exists := s.regs[key]
	if !exists && s.perPeer[peer] >= s.cfg.MaxRegistrationsPerPeer {
		s.mu.Unlock()
		s.rejected(peer, ns, "too many registrations")
		return Registration{}, ErrThrottled
	}

	now := s.clock.Now()
	s.nextOrdinal++
	reg := &Registration{
		Peer:         peer,
		Namespace:    ns,
		Addrs:        cleanAddrs,
		TTL:          ttl,
		RegisteredAt: now,
		Deadline:     now.Add(ttl),
		Ordinal:      s.nextOrdinal,
	}

	s.regs[key] = reg
	if s.index[ns] == nil {
		s.index[ns] = make(map[types.PeerID]*Registration)
	}
	s.index[ns][peer] = reg
	if !exists {
		s.perPeer[peer]++
	}

	// 旧定时器因 ordinal 不匹配而失效，新定时器与本次变更同锁安装
	s.scheduleLocked(reg.Deadline, reg.Ordinal, key)
	s.mu.Unlock()

	result := copyRegistration(reg)
	_ = s.emitRegistered.Emit(EvtPeerRegistered{
		Peer:      peer,
		Namespace: ns,
		Addrs:     result.Addrs,
		TTL:       ttl,
	})

	logger.Debug("注册", "peer", peer.ShortString(), "ns", ns, "ttl", ttl, "ordinal", reg.Ordinal)
	return result, nil
}

// rejected 发出注册拒绝事件
func (s *Store) rejected(peer types.PeerID, ns, reason string) {
	_ = s.emitNotRegistered.Emit(EvtPeerNotRegistered{
		Peer:      peer,
		Namespace: ns,
		Reason:    reason,
	})
}

// ============================================================================
// Unregister
// ============================================================================

// Unregister 注销
//
// 条目不存在时是幂等的无操作，不发事件。
func (s *Store) Unregister(peer types.PeerID, ns string) {
	key := regKey{peer: peer, ns: ns}

	s.mu.Lock()
	_, ok := s.regs[key]
	if ok {
		s.removeLocked(key)
	}
	s.mu.Unlock()

	if ok {
		_ = s.emitUnregistered.Emit(EvtPeerUnregistered{Peer: peer, Namespace: ns})
		logger.Debug("注销", "peer", peer.ShortString(), "ns", ns)
	}
}

// UnregisterPeer 注销某节点的全部注册
//
// DropOnDisconnect 开启时在连接断开处调用。
func (s *Store) UnregisterPeer(peer types.PeerID) {
	var removed []string

	s.mu.Lock()
	for key := range s.regs {
		if key.peer == peer {
			s.removeLocked(key)
			removed = append(removed, key.ns)
		}
	}
	s.mu.Unlock()

	for _, ns := range removed {
		_ = s.emitUnregistered.Emit(EvtPeerUnregistered{Peer: peer, Namespace: ns})
	}
}

// removeLocked 从注册表、索引与计数中移除条目，调用方持锁
//
// 堆中的过期条目不主动删除，靠 ordinal 校验跳过。
func (s *Store) removeLocked(key regKey) {
	delete(s.regs, key)

	if peers := s.index[key.ns]; peers != nil {
		delete(peers, key.peer)
		if len(peers) == 0 {
			delete(s.index, key.ns)
		}
	}

	if s.perPeer[key.peer]--; s.perPeer[key.peer] <= 0 {
		delete(s.perPeer, key.peer)
	}
}

// ============================================================================
// Discover
// ============================================================================

// Discover 按命名空间发现注册
//
// ns 为空表示所有命名空间。结果按 ordinal 升序，严格大于
// cookie 指向的位置，最多 limit 条（受 MaxDiscoverLimit 约束，
// limit <= 0 时取上限值）。返回的 cookie 指向本页最后一条，
// 传回即可续页。结果是调用时刻的一致快照。
func (s *Store) Discover(enquirer types.PeerID, ns string, cookie []byte, limit int) ([]Registration, []byte, error) {
	after, err := decodeCookie(cookie)
	if err != nil {
		return nil, nil, err
	}

	if limit <= 0 || limit > s.cfg.MaxDiscoverLimit {
		limit = s.cfg.MaxDiscoverLimit
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, ErrStoreClosed
	}
	now := s.clock.Now()

	var candidates []*Registration
	if ns == "" {
		candidates = make([]*Registration, 0, len(s.regs))
		for _, reg := range s.regs {
			if reg.Ordinal > after && reg.Deadline.After(now) {
				candidates = append(candidates, reg)
			}
		}
	} else {
		peers := s.index[ns]
		candidates = make([]*Registration, 0, len(peers))
		for _, reg := range peers {
			if reg.Ordinal > after && reg.Deadline.After(now) {
				candidates = append(candidates, reg)
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Ordinal < candidates[j].Ordinal
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]Registration, len(candidates))
	for i, reg := range candidates {
		out[i] = copyRegistration(reg)
	}
	s.mu.Unlock()

	next := after
	if len(out) > 0 {
		next = out[len(out)-1].Ordinal
	}

	_ = s.emitDiscover.Emit(EvtDiscoverServed{
		Enquirer:  enquirer,
		Namespace: ns,
		Count:     len(out),
	})

	return out, encodeCookie(next), nil
}

// ============================================================================
// 验证与辅助
// ============================================================================

// validateNamespace 注册用命名空间校验：非空、限长、可打印
func (s *Store) validateNamespace(ns string) error {
	if ns == "" || len(ns) > s.cfg.MaxNamespaceLength {
		return ErrInvalidNamespace
	}
	for _, r := range ns {
		if !unicode.IsPrint(r) {
			return ErrInvalidNamespace
		}
	}
	return nil
}

// validateAddrs 校验并按序去重地址列表，去重后数量不得超过 maxAddrs
func validateAddrs(addrs []types.Multiaddr, maxAddrs int) ([]types.Multiaddr, error) {
	if len(addrs) == 0 {
		return nil, ErrInvalidAddrs
	}

	seen := make(map[types.Multiaddr]struct{}, len(addrs))
	out := make([]types.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		// 保留解析出的规范形式，去重也按规范形式进行
		ma, err := types.ParseMultiaddr(string(a))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAddrs, err)
		}
		if _, dup := seen[ma]; dup {
			continue
		}
		seen[ma] = struct{}{}
		out = append(out, ma)
	}
	if len(out) > maxAddrs {
		return nil, fmt.Errorf("%w: too many addresses (%d > %d)", ErrInvalidAddrs, len(out), maxAddrs)
	}
	return out, nil
}

// clampTTL 把请求 TTL 钳制进配置区间
func (s *Store) clampTTL(requested time.Duration) time.Duration {
	if requested <= 0 {
		return s.cfg.DefaultTTL
	}
	if requested < s.cfg.MinTTL {
		return s.cfg.MinTTL
	}
	if requested > s.cfg.MaxTTL {
		return s.cfg.MaxTTL
	}
	return requested
}

// copyRegistration 深拷贝注册记录，调用方持锁
func copyRegistration(reg *Registration) Registration {
	out := *reg
	out.Addrs = append([]types.Multiaddr(nil), reg.Addrs...)
	return out
}

// ============================================================================
// 游标
// ============================================================================

// cookieSize 游标字节长度（大端 uint64 ordinal）
const cookieSize = 8

// encodeCookie 把 ordinal 编码为不透明游标
func encodeCookie(ordinal uint64) []byte {
	buf := make([]byte, cookieSize)
	binary.BigEndian.PutUint64(buf, ordinal)
	return buf
}

// decodeCookie 解析游标，空游标表示从头开始
func decodeCookie(cookie []byte) (uint64, error) {
	if len(cookie) == 0 {
		return 0, nil
	}
	if len(cookie) != cookieSize {
		return 0, ErrInvalidCookie
	}
	return binary.BigEndian.Uint64(cookie), nil
}

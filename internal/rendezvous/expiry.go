package rendezvous

import (
	"container/heap"
	"time"

	"github.com/benbjohnson/clock"
)

// ============================================================================
// 过期调度
// ============================================================================
//
// 按到期时间排序的最小堆，由单个 goroutine 服务：
// 睡到最早的截止时间，醒来驱逐所有到期条目，再重新装定时器。
// 续期/注销不从堆中删除旧条目，旧条目弹出时因 ordinal
// 与当前注册不符而被跳过——陈旧的定时器永远不会驱逐
// 已续期的注册。

// expiryEntry 堆条目
type expiryEntry struct {
	deadline time.Time
	ordinal  uint64
	key      regKey
}

// expiryHeap 按 deadline 排序的最小堆
type expiryHeap []expiryEntry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }
func (h expiryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *expiryHeap) Push(x interface{}) {
	*h = append(*h, x.(expiryEntry))
}

func (h *expiryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

// scheduleLocked 安装过期定时器，调用方持锁
//
// 新截止时间早于当前最早截止时间时唤醒调度 goroutine。
func (s *Store) scheduleLocked(deadline time.Time, ordinal uint64, key regKey) {
	wasEarliest := len(s.expiries) == 0 || deadline.Before(s.expiries[0].deadline)
	heap.Push(&s.expiries, expiryEntry{deadline: deadline, ordinal: ordinal, key: key})

	if wasEarliest {
		select {
		case s.wakeCh <- struct{}{}:
		default:
		}
	}
}

// expiryLoop 过期调度主循环
func (s *Store) expiryLoop() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		wait := time.Duration(-1)
		if len(s.expiries) > 0 {
			wait = s.expiries[0].deadline.Sub(s.clock.Now())
			if wait < 0 {
				wait = 0
			}
		}
		s.mu.Unlock()

		// 堆为空时只等唤醒
		var fireCh <-chan time.Time
		var timer *clock.Timer
		if wait >= 0 {
			timer = s.clock.Timer(wait)
			fireCh = timer.C
		}

		select {
		case <-s.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wakeCh:
			if timer != nil {
				timer.Stop()
			}
		case <-fireCh:
			s.evictDue()
		}
	}
}

// evictDue 驱逐所有到期条目
func (s *Store) evictDue() {
	now := s.clock.Now()

	var expired []Registration
	s.mu.Lock()
	for len(s.expiries) > 0 {
		e := s.expiries[0]
		if e.deadline.After(now) {
			break
		}
		heap.Pop(&s.expiries)

		reg, ok := s.regs[e.key]
		if !ok || reg.Ordinal != e.ordinal {
			// 已注销或已续期，陈旧条目
			continue
		}

		s.removeLocked(e.key)
		expired = append(expired, copyRegistration(reg))
	}
	s.mu.Unlock()

	for _, reg := range expired {
		_ = s.emitExpired.Emit(EvtRegistrationExpired{Registration: reg})
		logger.Debug("注册到期", "peer", reg.Peer.ShortString(), "ns", reg.Namespace)
	}
}

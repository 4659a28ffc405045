package eventbus

// subscriptionSettings 订阅设置
type subscriptionSettings struct {
	Buffer int
}

// SubscriptionOpt 订阅选项
type SubscriptionOpt func(*subscriptionSettings)

// BufSize 设置订阅通道的缓冲区大小
func BufSize(n int) SubscriptionOpt {
	return func(s *subscriptionSettings) {
		s.Buffer = n
	}
}

// emitterSettings 发射器设置
type emitterSettings struct {
	Stateful bool
}

// EmitterOpt 发射器选项
type EmitterOpt func(*emitterSettings)

// Stateful 让节点保留最后一个事件，新订阅者立即收到它
func Stateful(s *emitterSettings) {
	s.Stateful = true
}

package rendezvous

import "errors"

var (
	// ErrInvalidNamespace 命名空间为空、超长或含不可打印字符
	ErrInvalidNamespace = errors.New("rendezvous: invalid namespace")

	// ErrInvalidAddrs 地址列表为空或含非法地址
	ErrInvalidAddrs = errors.New("rendezvous: invalid addresses")

	// ErrInvalidPeer 节点 ID 无效
	ErrInvalidPeer = errors.New("rendezvous: invalid peer id")

	// ErrInvalidCookie 分页游标无法解析
	ErrInvalidCookie = errors.New("rendezvous: invalid cookie")

	// ErrThrottled 超过单节点注册数上限
	ErrThrottled = errors.New("rendezvous: too many registrations for peer")

	// ErrStoreClosed 注册表已关闭
	ErrStoreClosed = errors.New("rendezvous: store is closed")

	// ErrMessageTooLarge 消息超过帧大小上限
	ErrMessageTooLarge = errors.New("rendezvous: message exceeds size limit")

	// ErrUnexpectedMessage 流上收到类型不符的消息
	ErrUnexpectedMessage = errors.New("rendezvous: unexpected message type")

	// ErrRegisterFailed 服务端拒绝注册
	ErrRegisterFailed = errors.New("rendezvous: register failed")

	// ErrDiscoverFailed 服务端拒绝发现请求
	ErrDiscoverFailed = errors.New("rendezvous: discover failed")
)

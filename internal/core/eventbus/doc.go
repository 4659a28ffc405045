// Package eventbus 实现进程内生命周期事件总线
//
// 按事件类型分发：Emitter 与 Subscribe 都以事件结构体指针
// 声明类型，同类型的事件投递给该类型的所有订阅者。
// 投递是非阻塞的：订阅者缓冲区满时事件被丢弃并计数，
// 慢消费者不会反压发射方。
package eventbus

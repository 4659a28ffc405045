// Package main 提供独立的 Rendezvous 汇合点服务器
//
// 节点把自己的地址按命名空间注册到汇合点，
// 其他节点按命名空间发现它们。
//
// 使用方法:
//
//	go run main.go -listen :7776
//
// 指定固定身份（32 字节种子的十六进制）:
//
//	go run main.go -secret-key <hex>
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"

	"go.uber.org/fx"

	"github.com/dep2p/go-rendezvous/internal/core/eventbus"
	"github.com/dep2p/go-rendezvous/internal/core/identity"
	"github.com/dep2p/go-rendezvous/internal/rendezvous"
	"github.com/dep2p/go-rendezvous/pkg/lib/log"
)

var logger = log.Logger("cmd/rendezvous-point")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	listen := flag.String("listen", ":7776", "监听地址")
	secretKey := flag.String("secret-key", "", "十六进制 Ed25519 种子（32 字节），留空则随机生成")
	dropOnDisconnect := flag.Bool("drop-on-disconnect", false, "连接断开时立即清除该节点的注册")
	verbose := flag.Bool("v", false, "输出调试日志")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.LevelDebug)
	}

	// 身份：外部密钥管理只负责交付种子，校验在这里完成
	var id *identity.Identity
	var err error
	if *secretKey != "" {
		id, err = identity.FromSeedHex(*secretKey)
	} else {
		id, err = identity.Generate()
	}
	if err != nil {
		return fmt.Errorf("加载身份: %w", err)
	}

	cfg := rendezvous.DefaultConfig()
	cfg.DropOnDisconnect = *dropOnDisconnect

	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg, id),
		rendezvous.Module(),
		fx.Invoke(
			logLifecycleEvents,
			serveOn(*listen),
		),
	)

	app.Run()
	return nil
}

// serveOn 返回在指定地址启动服务的 Invoke 函数
func serveOn(addr string) func(fx.Lifecycle, *rendezvous.Point, fx.Shutdowner) {
	return func(lc fx.Lifecycle, point *rendezvous.Point, shutdowner fx.Shutdowner) {
		lc.Append(fx.Hook{
			OnStart: func(_ context.Context) error {
				ln, err := net.Listen("tcp", addr)
				if err != nil {
					return fmt.Errorf("监听 %s: %w", addr, err)
				}

				logger.Info("汇合点已启动",
					"peerID", point.PeerID().String(),
					"listen", ln.Addr().String())

				go func() {
					if err := point.Serve(ln); err != nil {
						logger.Error("服务异常退出", "error", err)
						_ = shutdowner.Shutdown()
					}
				}()
				return nil
			},
		})
	}
}

// logLifecycleEvents 订阅生命周期事件并输出日志
//
// 事件总线的消费端与注册表解耦，这里是默认的观测消费者。
func logLifecycleEvents(lc fx.Lifecycle, bus *eventbus.Bus) error {
	subRegistered, err := bus.Subscribe(new(rendezvous.EvtPeerRegistered))
	if err != nil {
		return err
	}
	subRejected, err := bus.Subscribe(new(rendezvous.EvtPeerNotRegistered))
	if err != nil {
		return err
	}
	subUnregistered, err := bus.Subscribe(new(rendezvous.EvtPeerUnregistered))
	if err != nil {
		return err
	}
	subExpired, err := bus.Subscribe(new(rendezvous.EvtRegistrationExpired))
	if err != nil {
		return err
	}
	subDiscover, err := bus.Subscribe(new(rendezvous.EvtDiscoverServed))
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case evt := <-subRegistered.Out():
				e := evt.(rendezvous.EvtPeerRegistered)
				logger.Info("节点注册", "peer", e.Peer.ShortString(), "ns", e.Namespace, "ttl", e.TTL)
			case evt := <-subRejected.Out():
				e := evt.(rendezvous.EvtPeerNotRegistered)
				logger.Warn("注册被拒", "peer", e.Peer.ShortString(), "ns", e.Namespace, "reason", e.Reason)
			case evt := <-subUnregistered.Out():
				e := evt.(rendezvous.EvtPeerUnregistered)
				logger.Info("节点注销", "peer", e.Peer.ShortString(), "ns", e.Namespace)
			case evt := <-subExpired.Out():
				e := evt.(rendezvous.EvtRegistrationExpired)
				logger.Info("注册到期", "peer", e.Registration.Peer.ShortString(), "ns", e.Registration.Namespace)
			case evt := <-subDiscover.Out():
				e := evt.(rendezvous.EvtDiscoverServed)
				logger.Debug("发现请求", "enquirer", e.Enquirer.ShortString(), "ns", e.Namespace, "count", e.Count)
			}
		}
	}()

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			close(done)
			subRegistered.Close()
			subRejected.Close()
			subUnregistered.Close()
			subExpired.Close()
			subDiscover.Close()
			return nil
		},
	})
	return nil
}

package rendezvous

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-rendezvous/internal/core/eventbus"
	"github.com/dep2p/go-rendezvous/internal/core/identity"
	"github.com/dep2p/go-rendezvous/internal/core/muxer"
	"github.com/dep2p/go-rendezvous/internal/core/muxer/mplex"
	"github.com/dep2p/go-rendezvous/internal/core/muxer/yamux"
	"github.com/dep2p/go-rendezvous/internal/core/security/noise"
	"github.com/dep2p/go-rendezvous/internal/core/upgrader"
)

// ============================================================================
// Fx 模块
// ============================================================================

// Module 返回汇合点 Fx 模块
//
// 装配：事件总线、升级器（noise + yamux/mplex）、注册表与服务端。
func Module() fx.Option {
	return fx.Module("rendezvous",
		fx.Provide(
			eventbus.NewBus,
			provideUpgrader,
			provideStore,
			providePoint,
		),
		fx.Invoke(registerLifecycle),
	)
}

// upgraderParams 升级器依赖
type upgraderParams struct {
	fx.In

	Identity *identity.Identity
	Config   Config
}

// provideUpgrader 构建 noise + yamux/mplex 升级器
func provideUpgrader(p upgraderParams) (*upgrader.Upgrader, error) {
	sec, err := noise.New(p.Identity.PrivateKey())
	if err != nil {
		return nil, err
	}
	return upgrader.New(upgrader.Config{
		Security:         sec,
		Muxers:           []muxer.Transport{yamux.NewTransport(), mplex.NewTransport()},
		HandshakeTimeout: p.Config.HandshakeTimeout,
	})
}

// storeParams 注册表依赖
type storeParams struct {
	fx.In

	Config Config
	Bus    *eventbus.Bus
	Clock  clock.Clock `optional:"true"`
}

// provideStore 构建注册表
func provideStore(p storeParams) (*Store, error) {
	return NewStore(p.Config, p.Clock, p.Bus)
}

// pointParams 服务端依赖
type pointParams struct {
	fx.In

	Config   Config
	Identity *identity.Identity
	Store    *Store
	Upgrader *upgrader.Upgrader
}

// providePoint 构建汇合点服务端
func providePoint(p pointParams) (*Point, error) {
	return NewPoint(p.Config, p.Identity, p.Store, p.Upgrader)
}

// lifecycleParams 生命周期依赖
type lifecycleParams struct {
	fx.In

	LC    fx.Lifecycle
	Store *Store
	Point *Point
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(p lifecycleParams) {
	p.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			if err := p.Point.Close(); err != nil {
				return err
			}
			return p.Store.Close()
		},
	})
}

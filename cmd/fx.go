package cmd

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.uber.org/fx"

	"github.com/privchat/privchat-sdk-go/internal/config"
	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	"github.com/privchat/privchat-sdk-go/pkg/privchat"
)

// sessionArgs carries the demo credentials the connect command was
// invoked with; a real host application would source these from its own
// login flow rather than flags.
type sessionArgs struct {
	userID   int64
	token    string
	deviceID uuid.UUID
}

// NewApp wires the SDK façade into an *fx.App, registering an OnStart
// hook that connects, authenticates (when credentials were supplied),
// and kicks off the initial bootstrap sync, and an OnStop hook that
// disconnects cleanly.
func NewApp(logger *slog.Logger, cfg *config.Config, args sessionArgs) *fx.App {
	return fx.New(
		fx.Provide(
			func() *slog.Logger { return logger },
			func() *config.Config { return cfg },
			privchat.New,
		),
		fx.Invoke(func(lc fx.Lifecycle, sdk *privchat.SDK) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := sdk.Connect(ctx); err != nil {
						return err
					}
					if args.token == "" {
						logger.Info("connected without credentials; call Register/Authenticate from a host application")
						return nil
					}
					if err := sdk.Authenticate(ctx, args.userID, args.token, args.deviceID, model.DeviceInfo{
						Platform: "cli",
						AppVer:   version,
					}); err != nil {
						return err
					}
					if err := sdk.RunBootstrapSync(ctx); err != nil {
						logger.Warn("bootstrap sync failed", slog.Any("err", err))
					}
					return nil
				},
				OnStop: func(ctx context.Context) error {
					return sdk.Disconnect("client shutdown")
				},
			})
		}),
	)
}

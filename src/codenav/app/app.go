package app

import (
	"context"
	"time"

	"github.com/uber-go/tally"
	"github.com/uber/codenav/src/codenav/controller/capability"
	languageserver "github.com/uber/codenav/src/codenav/controller/language-server"
	"github.com/uber/codenav/src/codenav/controller/orchestrator"
	"github.com/uber/codenav/src/codenav/controller/tools"
	mcpstdio "github.com/uber/codenav/src/codenav/handler/mcp-stdio"
	tooldispatch "github.com/uber/codenav/src/codenav/handler/tool-dispatch"
	"github.com/uber/codenav/src/codenav/internal/clock"
	"github.com/uber/codenav/src/codenav/internal/core"
	"github.com/uber/codenav/src/codenav/internal/executor"
	"github.com/uber/codenav/src/codenav/internal/fs"
	"github.com/uber/codenav/src/codenav/internal/jsonrpcfx"
	"github.com/uber/codenav/src/codenav/internal/serverinfofile"
	"go.uber.org/fx"
)

// Module defines the codenav application module.
var Module = fx.Options(
	// controllers
	languageserver.Module,
	capability.Module,
	orchestrator.Module,
	tools.Module,
	// inbounds; the dispatch server must be constructed before the transports it serves
	tooldispatch.Module,
	mcpstdio.Module,
	jsonrpcfx.Module,
	// infrastructure
	fs.Module,
	clock.Module,
	executor.Module,
	serverinfofile.Module,
	core.ConfigModule,
	core.LoggerModule,
	fx.Provide(func(lc fx.Lifecycle, env Context) tally.Scope {
		rs, closer := tally.NewRootScope(tally.ScopeOptions{
			Tags: map[string]string{
				"service": "codenav",
				"env":     env.Environment,
			},
		}, 1*time.Second)

		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return closer.Close()
			},
		})

		return rs
	}),
	fx.Decorate(decorateEnvContext),
	fx.Decorate(decorateConfigProvider),
	fx.Provide(func() Context {
		return Context{
			Environment:        EnvLocal,
			RuntimeEnvironment: EnvLocal,
		}
	}),
)

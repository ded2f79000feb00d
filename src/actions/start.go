// Package actions assembles the background modules of the commons service.
package actions

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stake-plus/commons/src/actions/apiserver"
	"github.com/stake-plus/commons/src/actions/core"
	"github.com/stake-plus/commons/src/api/webserver"
	"github.com/stake-plus/commons/src/config"
	"github.com/stake-plus/commons/src/discord"
	"github.com/stake-plus/commons/src/events"
	"github.com/stake-plus/commons/src/observability"
	"github.com/stake-plus/commons/src/polkadot"
)

// Runtime is what main has already built.
type Runtime struct {
	API     config.APIConfig
	Chain   config.ChainConfig
	Discord config.DiscordConfig
	Deps    webserver.Deps
	Redis   *redis.Client
	Nonces  polkadot.NonceBook
	Stream  string
}

// StartAll registers the enabled modules and starts them.
func StartAll(ctx context.Context, rt Runtime) (*Manager, error) {
	mgr := NewManager()
	log := observability.Component("actions")

	if err := mgr.Add(apiserver.NewModule(rt.API, rt.Deps, observability.Component("api"))); err != nil {
		return nil, err
	}

	if rt.Chain.RemarkEnabled {
		client, err := polkadot.NewClient(rt.Chain.RemarkRPCURL, rt.Chain.SS58Prefix)
		if err != nil {
			return nil, fmt.Errorf("actions: remark watcher: %w", err)
		}
		watcher := polkadot.NewRemarkWatcher(client, rt.Nonces, observability.Component("remark"))
		if err := mgr.Add(core.NewLoop("remark-watcher", func(ctx context.Context) {
			defer client.Close()
			if err := watcher.Run(ctx); err != nil {
				log.Error().Err(err).Msg("actions: remark watcher stopped")
			}
		})); err != nil {
			return nil, err
		}
	} else {
		log.Info().Msg("actions: remark watcher disabled via configuration")
	}

	if rt.Discord.Enabled && rt.Redis != nil {
		session, err := discord.Open(rt.Discord.Token)
		if err != nil {
			return nil, fmt.Errorf("actions: discord notifier: %w", err)
		}
		n := discord.NewNotifier(session, events.NewReader(rt.Redis, rt.Stream, "$"),
			rt.Discord.ChannelID, rt.Discord.PublicURL, observability.Component("discord"))
		if err := mgr.Add(core.NewLoop("discord-notifier", func(ctx context.Context) {
			defer session.Close()
			n.Run(ctx)
		})); err != nil {
			return nil, err
		}
	} else {
		log.Info().Msg("actions: discord notifier disabled via configuration")
	}

	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}
	log.Info().Strs("modules", mgr.Names()).Msg("actions: started")
	return mgr, nil
}

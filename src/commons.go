package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/rs/zerolog/log"

	"github.com/stake-plus/commons/src/actions"
	"github.com/stake-plus/commons/src/api/webserver"
	"github.com/stake-plus/commons/src/config"
	"github.com/stake-plus/commons/src/consent"
	"github.com/stake-plus/commons/src/data"
	"github.com/stake-plus/commons/src/events"
	"github.com/stake-plus/commons/src/governance"
	"github.com/stake-plus/commons/src/ledger"
	"github.com/stake-plus/commons/src/membership"
	"github.com/stake-plus/commons/src/observability"
	"github.com/stake-plus/commons/src/polkadot"
	"github.com/stake-plus/commons/src/store"
	"github.com/stake-plus/commons/src/store/gormstore"
	"github.com/stake-plus/commons/src/store/memstore"
	"github.com/stake-plus/commons/src/treasury"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	observability.InitLogger("commons", env.LogLevel, env.LogFormat)
	observability.RegisterMetrics()

	st := openStore(env)
	defer st.Close()

	protocol, err := config.LoadProtocol(env.ParamsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("protocol parameters")
	}
	if env.RedisURL == "" {
		log.Fatal().Msg("REDIS_URL is required")
	}
	rdb := data.MustRedis(env.RedisURL)
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis ping")
	}

	commit := ledger.NewCommitter(st, events.NewRedisPublisher(rdb, events.DefaultStream, env.StreamMaxLen))
	members := membership.NewRegistry(st, commit, membership.WithCache(rdb, env.MembershipCacheTTL))
	for _, addr := range env.AdminAddresses {
		canon, err := polkadot.Canonical(addr, env.SS58Prefix)
		if err != nil {
			log.Fatal().Err(err).Str("addr", addr).Msg("admin address")
		}
		if err := members.EnsureAdmin(ctx, canon); err != nil {
			log.Fatal().Err(err).Str("addr", canon).Msg("seed admin")
		}
	}

	chainCfg := config.LoadChainConfig(env)
	govOpts := []governance.Option{}
	if chainCfg.PayoutEnabled {
		govOpts = append(govOpts, governance.WithRemotePayouts(chainPayouts(chainCfg)))
	}
	govEngine, err := governance.New(st, members, commit, protocol.Governance, govOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("governance engine")
	}
	consentEngine, err := consent.New(st, members, commit, protocol.Cooldown)
	if err != nil {
		log.Fatal().Err(err).Msg("consent engine")
	}

	nonces := data.NewNonceStore(rdb)
	manager, err := actions.StartAll(ctx, actions.Runtime{
		API:     config.LoadAPIConfig(env),
		Chain:   chainCfg,
		Discord: config.LoadDiscordConfig(env),
		Deps: webserver.Deps{
			Governance: govEngine,
			Consent:    consentEngine,
			Members:    members,
			Treasury:   treasury.NewService(st, commit, nil),
			Ledger:     st,
			Nonces:     nonces,
			SS58Prefix: env.SS58Prefix,
		},
		Redis:  rdb,
		Nonces: nonces,
		Stream: events.DefaultStream,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("actions start")
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info().Msg("shutting down")

	cancel()
	manager.Stop(context.Background())
}

func openStore(env config.Env) store.Store {
	if env.StoreDriver == "memory" {
		log.Warn().Msg("using the in-memory store; state is lost on exit")
		return memstore.New()
	}
	db, err := data.ConnectMySQL(env.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	if err := data.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	if err := data.LoadSettings(db); err != nil {
		log.Warn().Err(err).Msg("settings table unavailable; using env and defaults")
	}
	return gormstore.New(db)
}

// chainPayouts pays Funding proposals from the configured on-chain account.
func chainPayouts(cfg config.ChainConfig) treasury.Remote {
	client, err := polkadot.NewClient(cfg.PayoutRPCURL, cfg.SS58Prefix)
	if err != nil {
		log.Fatal().Err(err).Msg("payout rpc")
	}
	signer, err := signature.KeyringPairFromSecret(cfg.PayoutSeed, cfg.SS58Prefix)
	if err != nil {
		log.Fatal().Err(err).Msg("payout signer")
	}
	log.Info().Str("from", signer.Address).Msg("treasury: chain payouts enabled")
	return treasury.NewChainTransfer(client, signer)
}

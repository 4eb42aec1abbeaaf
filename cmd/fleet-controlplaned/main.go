package main

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fleetwatch/controlplane/internal/alerts"
	"github.com/fleetwatch/controlplane/internal/alerts/adapters"
	"github.com/fleetwatch/controlplane/internal/api"
	"github.com/fleetwatch/controlplane/internal/broker"
	"github.com/fleetwatch/controlplane/internal/config"
	"github.com/fleetwatch/controlplane/internal/drift"
	"github.com/fleetwatch/controlplane/internal/gateway"
	"github.com/fleetwatch/controlplane/internal/security"
	"github.com/fleetwatch/controlplane/internal/store"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	st, err := store.Open(cfg.DatabasePath, cfg.DBMaxConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer func() { _ = st.Close() }()

	var b broker.Broker
	if cfg.SharedBrokerEnabled() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		b = broker.NewSharedBroker(rdb, log)
		log.Info().Str("addr", cfg.RedisAddr).Msg("shared broker enabled")
	} else {
		b = broker.NewLocalBroker()
	}
	defer func() { _ = b.Close() }()

	secretKey, err := decodeSecretKey(cfg.SecretEncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid FLEET_SECRET_KEY")
	}
	vault, err := security.NewVault(secretKey, st)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct secrets vault")
	}

	channelAdapters := map[string]alerts.Adapter{
		store.ChannelTypeWebhook: adapters.NewWebhook(),
		store.ChannelTypeSlack:   adapters.NewChat(),
		store.ChannelTypeInApp:   adapters.NewInApp(),
	}
	if cfg.EmailEnabled() {
		sink := adapters.NewSMTPSink(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPHost)
		channelAdapters[store.ChannelTypeEmail] = adapters.NewEmail(sink)
	} else {
		log.Warn().Msg("FLEET_SMTP_ADDR not set — email notification channel disabled")
	}

	dispatcher := alerts.NewDispatcher(log, st, b, channelAdapters)
	evaluator := alerts.NewEvaluator(log, st, dispatcher, cfg.EvaluatorInterval)

	gw := gateway.New(log, st, b, gateway.Config{
		KeepAliveInterval: cfg.KeepAliveInterval,
		AllowedOrigins:    cfg.AllowedOrigins,
	})

	apiServer := api.New(log, cfg.ListenAddr, api.Deps{
		Store:    st,
		Gateway:  gw,
		Rules:    alerts.NewRuleService(st),
		Channels: alerts.NewChannelService(st, dispatcher),
		Alerts:   alerts.NewService(st),
		Drift:    drift.NewService(st),
		Vault:    vault,
		Security: security.NewSummaryService(st),
	})

	go gw.Run()
	go evaluator.Run()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-shutdownCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("api shutdown error")
	}
	evaluator.Stop()
	gw.Close()

	log.Info().Msg("server shutdown complete")
}

// decodeSecretKey accepts FLEET_SECRET_KEY as 64 hex chars (32 bytes, for
// chacha20poly1305) and fails loudly on any other length.
func decodeSecretKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, errors.New("FLEET_SECRET_KEY must decode to 32 bytes")
	}
	return key, nil
}

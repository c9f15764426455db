package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/openvenue/matchd/params"
	"github.com/openvenue/matchd/pkg/api"
	"github.com/openvenue/matchd/pkg/book"
	"github.com/openvenue/matchd/pkg/engine"
	"github.com/openvenue/matchd/pkg/settle"
	"github.com/openvenue/matchd/pkg/txlog"
	"github.com/openvenue/matchd/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	var err error
	if cfg.Log.File != "" {
		logger, err = util.NewLoggerWithFile(cfg.Log.File)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File)

	// ---- Submitting identities ----
	pool, err := settle.NewPool(cfg.Chain.Mnemonic, cfg.Chain.SecondarySigners)
	if err != nil {
		sugar.Fatalw("identity_pool_failed", "err", err)
	}
	for i, addr := range pool.Addresses() {
		role := "secondary"
		if i == 0 {
			role = "primary"
		}
		sugar.Infow("identity", "index", i, "role", role, "address", addr.Hex())
	}

	// ---- Settlement layer ----
	client, err := settle.NewEVMClient(cfg.Chain.RPCURL, cfg.Chain.ContractAddr, cfg.Chain.ChainID, sugar)
	if err != nil {
		sugar.Fatalw("settlement_client_failed", "err", err)
	}
	defer client.Close()

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := client.InitSequences(bootCtx, pool); err != nil {
		bootCancel()
		sugar.Fatalw("sequence_init_failed", "err", err)
	}
	bootCancel()

	// ---- Round log sinks ----
	pebbleSink, err := txlog.NewPebbleSink(cfg.Log.PebblePath)
	if err != nil {
		sugar.Fatalw("rounds_db_failed", "path", cfg.Log.PebblePath, "err", err)
	}
	sinks := []txlog.Sink{pebbleSink}
	if len(cfg.Log.KafkaBrokers) > 0 {
		sinks = append(sinks, txlog.NewKafkaSink(cfg.Log.KafkaBrokers, cfg.Log.KafkaTopic))
		sugar.Infow("kafka_sink_enabled", "brokers", cfg.Log.KafkaBrokers, "topic", cfg.Log.KafkaTopic)
	}

	// ---- Core ----
	b := book.New()

	reporter := txlog.NewReporter(sinks, 1024, sugar)
	defer reporter.Close()

	srv := api.NewServer(b, reporter, sugar)
	reporter.AddSink(srv.RoundSink())

	dispatcher := settle.NewDispatcher(client, pool, cfg.Matcher.BatchSize, cfg.Matcher.MaxInflight, cfg.Matcher.BatchTimeout, sugar)

	eng := engine.New(b, dispatcher, reporter, sugar, util.RealClock{}, cfg.Matcher.Interval)
	eng.SetReceiptSource(client)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(cfg.API.Addr); err != nil {
			sugar.Errorw("api_server_stopped", "err", err)
		}
	}()

	sugar.Infow("matchd_starting",
		"interval_ms", cfg.Matcher.Interval.Milliseconds(),
		"batch_size", cfg.Matcher.BatchSize,
		"max_inflight", cfg.Matcher.MaxInflight,
		"identities", pool.Size(),
		"contract", cfg.Chain.ContractAddr)

	eng.Run(ctx)

	sugar.Info("matchd_stopped")
}

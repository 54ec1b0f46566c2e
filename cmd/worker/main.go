package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"inboxagent/config"
	"inboxagent/internal/db"
	"inboxagent/internal/decision"
	"inboxagent/internal/heuristic"
	"inboxagent/internal/llm"
	"inboxagent/internal/model"
	"inboxagent/internal/mq"
	"inboxagent/internal/mqhandler"
	redisclient "inboxagent/internal/redis"
	"inboxagent/internal/repository"
	"inboxagent/internal/rules"
	"inboxagent/pkg/util"
)

// mqArchiver asks the ingestion side to archive the source item by
// publishing signal.archive. The worker never talks to mail providers.
type mqArchiver struct {
	producer *mq.Producer
}

func (a *mqArchiver) Archive(_ context.Context, sourceType model.SourceType, externalID string) error {
	return a.producer.Publish(mq.RoutingKeySignalArchive, mq.ArchivePayload{
		SourceType:       string(sourceType),
		SourceExternalID: externalID,
	})
}

func main() {
	// Load config
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting engine worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Redis
	rdb := redisclient.NewClient(cfg.Redis)
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, time.Hour)
	retries := util.NewRetryCounter(rdb, 24*time.Hour)

	// Init DB
	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Init repositories
	decisionRepo := repository.NewDecisionRepository(dbConn)
	ruleRepo := repository.NewRuleRepository(dbConn)
	todoRepo := repository.NewTodoRepository(dbConn)
	senderRepo := repository.NewSenderRepository(dbConn)

	// Init producer for decision.execute / signal.archive fan-out
	producer, err := mq.NewProducer(cfg.MQ.URL)
	if err != nil {
		logger.Fatal("failed to init producer", zap.Error(err))
	}
	defer producer.Close()

	// Rule snapshot provider with periodic refresh
	regexCache := rules.NewRegexCache()
	provider := rules.NewProvider(ruleRepo, regexCache, cfg.Engine.SnapshotRefresh, logger)
	if err := provider.Refresh(ctx); err != nil {
		logger.Fatal("initial rule snapshot load failed", zap.Error(err))
	}
	go provider.Run(ctx)

	// Engine core
	matcher := rules.NewMatcher(regexCache, logger)
	scorer := heuristic.NewScorer(cfg.Engine.KnownSenderMin)
	calc := heuristic.NewCalculator(cfg.Engine, logger)
	recorder := decision.NewRecorder(decisionRepo, logger)

	var analyzer decision.Analyzer
	if cfg.LLM.BaseURL != "" {
		analyzer = llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.Timeout)
	}

	pipeline := decision.NewPipeline(
		provider,
		matcher,
		scorer,
		calc,
		recorder,
		ruleRepo,
		senderRepo,
		analyzer,
		producer,
		logger,
	)

	executor := decision.NewExecutor(
		recorder,
		todoRepo,
		&mqArchiver{producer: producer},
		retries,
		cfg.Engine.MaxExecutionRetries,
		logger,
	)

	signalHandler := mqhandler.NewSignalReceivedHandler(pipeline, deduper, logger)

	// (1) Consumer for incoming signals
	consumerSignal, err := mq.NewConsumer(cfg.MQ.URL, mq.RoutingKeySignalReceived, logger)
	if err != nil {
		logger.Fatal("failed to init signal consumer", zap.Error(err))
	}
	consumerSignal.SetHandler(signalHandler.HandleSignalReceived)
	go func() {
		if err := consumerSignal.StartConsuming(ctx); err != nil {
			logger.Fatal("signal consumer failed", zap.Error(err))
		}
	}()
	defer consumerSignal.Close()

	// (2) Consumer for decision execution
	consumerExecute, err := mq.NewConsumer(cfg.MQ.URL, mq.RoutingKeyDecisionExecute, logger)
	if err != nil {
		logger.Fatal("failed to init execute consumer", zap.Error(err))
	}
	consumerExecute.SetHandler(executor.HandleExecute)
	go func() {
		if err := consumerExecute.StartConsuming(ctx); err != nil {
			logger.Fatal("execute consumer failed", zap.Error(err))
		}
	}()
	defer consumerExecute.Close()

	logger.Info("All consumers started, worker is ready to process messages")

	// Keep worker running
	select {}
}

package main

import (
	"log"

	"go.uber.org/zap"

	"inboxagent/config"
	"inboxagent/internal/api"
	"inboxagent/internal/db"
	"inboxagent/internal/decision"
	"inboxagent/internal/mq"
	"inboxagent/internal/repository"
	"inboxagent/internal/rules"
	"inboxagent/internal/service"
)

func main() {
	// 1. Load config
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// 2. Init DB
	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// 3. Init RabbitMQ producer
	producer, err := mq.NewProducer(cfg.MQ.URL)
	if err != nil {
		log.Fatalf("failed to init producer: %v", err)
	}
	defer producer.Close()

	// 4. Init repositories
	userRepo := repository.NewUserRepository(dbConn)
	decisionRepo := repository.NewDecisionRepository(dbConn)
	ruleRepo := repository.NewRuleRepository(dbConn)

	// 5. Engine collaborators the API needs: recorder for review
	// transitions, learner for "always do this", snapshot provider so
	// rule mutations take effect without waiting for the worker's tick.
	recorder := decision.NewRecorder(decisionRepo, logger)
	learner := rules.NewLearner(ruleRepo, logger)
	regexCache := rules.NewRegexCache()
	provider := rules.NewProvider(ruleRepo, regexCache, cfg.Engine.SnapshotRefresh, logger)

	// 6. Init services
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret)
	signalService := service.NewSignalService(producer, logger)
	decisionService := service.NewDecisionService(recorder, learner, producer, logger)
	ruleService := service.NewRuleService(ruleRepo, regexCache, provider, logger)

	// 7. Init handlers
	authHandler := api.NewAuthHandler(authService)
	signalHandler := api.NewSignalHandler(signalService)
	decisionHandler := api.NewDecisionHandler(decisionService)
	ruleHandler := api.NewRuleHandler(ruleService)

	// 8. Init router
	router := api.NewRouter(authHandler, signalHandler, decisionHandler, ruleHandler, cfg.JWT.Secret)

	// 9. Run server
	if err := router.Run(cfg.Server.Port); err != nil {
		logger.Fatal("server start failed", zap.Error(err))
	}
}

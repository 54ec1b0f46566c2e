package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	authHandler *AuthHandler,
	signalHandler *SignalHandler,
	decisionHandler *DecisionHandler,
	ruleHandler *RuleHandler,
	jwtSecret string,
) *Router {
	r := gin.Default()

	// Public
	r.POST("/register", authHandler.Register)
	r.POST("/login", authHandler.Login)
	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.POST("/signals", signalHandler.IngestSignal)

		auth.GET("/decisions", decisionHandler.ListDecisions)
		auth.GET("/decisions/stats", decisionHandler.GetStats)
		auth.GET("/decisions/:id", decisionHandler.GetDecision)
		auth.POST("/decisions/:id/approve", decisionHandler.ApproveDecision)
		auth.POST("/decisions/:id/reject", decisionHandler.RejectDecision)
		auth.POST("/decisions/batch/approve", decisionHandler.BatchApprove)
		auth.POST("/decisions/batch/reject", decisionHandler.BatchReject)

		auth.GET("/rules", ruleHandler.ListRules)
		auth.GET("/rules/:id", ruleHandler.GetRule)
		auth.POST("/rules", ruleHandler.CreateRule)
		auth.PUT("/rules/:id", ruleHandler.UpdateRule)
		auth.DELETE("/rules/:id", ruleHandler.DeleteRule)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}

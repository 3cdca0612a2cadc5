package router

import (
	"net/http"

	"mteval/app/handler"
	"mteval/app/middleware"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	workerHandler  *handler.WorkerHandler
	jobHandler     *handler.JobHandler
	apiKey         string
	metricsPath    string
	metricsHandler http.Handler
}

// Option configures optional routes
type Option func(*Router)

// WithAPIKey requires a bearer token on the worker API
func WithAPIKey(apiKey string) Option {
	return func(r *Router) { r.apiKey = apiKey }
}

// WithMetrics exposes a Prometheus handler at path
func WithMetrics(path string, h http.Handler) Option {
	return func(r *Router) {
		r.metricsPath = path
		r.metricsHandler = h
	}
}

// NewRouter creates a new Router
func NewRouter(workerHandler *handler.WorkerHandler, jobHandler *handler.JobHandler, opts ...Option) *Router {
	r := &Router{
		workerHandler: workerHandler,
		jobHandler:    jobHandler,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger())

	v1 := engine.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(r.apiKey))
	{
		ns := v1.Group("/namespaces/:ns")
		{
			ns.POST("/workers/register", r.workerHandler.Register)
			ns.GET("/workers/:id", r.workerHandler.GetWorker)
			ns.PUT("/workers/:id/heartbeat", r.workerHandler.Heartbeat)
			ns.POST("/workers/:id/unregister", r.workerHandler.Unregister)
			ns.POST("/workers/:id/jobs/assign", r.jobHandler.Assign)
			ns.POST("/workers/:id/jobs/:job_id/report_result", r.jobHandler.ReportResult)
			ns.GET("/jobs/:job_id", r.jobHandler.GetJob)
		}
	}

	if r.metricsHandler != nil {
		engine.GET(r.metricsPath, gin.WrapH(r.metricsHandler))
	}

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

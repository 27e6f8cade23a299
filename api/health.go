package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"appserver/config"
	"appserver/storage"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const healthCheckTimeout = 2 * time.Second

// HealthController reports process and database health at /api/health
type HealthController struct {
	db     storage.Connector
	logger *zap.SugaredLogger
}

// NewHealthController creates a health controller for db
func NewHealthController(db storage.Connector, logger *zap.SugaredLogger) *HealthController {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &HealthController{db: db, logger: logger}
}

// Path implements Controller
func (c *HealthController) Path() string {
	return "/health"
}

// Routes implements Controller
func (c *HealthController) Routes(r *mux.Router) {
	r.Handle("", HandlerFunc(c.health)).Methods(http.MethodGet)
	r.Handle("/", HandlerFunc(c.health)).Methods(http.MethodGet)
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Error    string `json:"error,omitempty"`
	Time     string `json:"time"`
}

func (c *HealthController) health(w http.ResponseWriter, r *http.Request) error {
	resp := healthResponse{
		Status:   "ok",
		Database: "connected",
		Time:     time.Now().UTC().Format(time.RFC3339),
	}

	switch {
	case c.db == nil:
		resp.Status = "degraded"
		resp.Database = "unavailable"
	default:
		select {
		case <-c.db.Ready():
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := c.db.HealthCheck(ctx); err != nil {
				c.logger.Warnw("Database health check failed",
					"error", err,
					"request_id", RequestID(r.Context()))
				resp.Status = "degraded"
				resp.Database = "unavailable"
				resp.Error = healthErrorReason(err)
			}
		default:
			resp.Status = "degraded"
			resp.Database = "connecting"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, resp)
	return nil
}

// healthErrorReason maps a connector error to a fixed phrase for clients
func healthErrorReason(err error) string {
	var connErr *config.ConnectionError
	if errors.As(err, &connErr) {
		return "not configured"
	}
	return "unreachable"
}

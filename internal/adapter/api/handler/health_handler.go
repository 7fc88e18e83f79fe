package handler

import (
	"net/http"
	"time"

	ws "freelancehub/internal/infrastructure/websocket"
	"freelancehub/internal/usecase"

	"github.com/labstack/echo/v4"
)

type HealthHandler struct {
	wsManager    *ws.Manager
	messageStore *usecase.MessageStore
	backends     map[string]string
}

var healthHandler *HealthHandler

// NewHealthHandler reports liveness plus the swallowed replica failure
// counters, which are the only signal that the two replicas drifted.
func NewHealthHandler(wsManager *ws.Manager, messageStore *usecase.MessageStore, backends map[string]string) *HealthHandler {
	return &HealthHandler{
		wsManager:    wsManager,
		messageStore: messageStore,
		backends:     backends,
	}
}

func SetupHealthHandler(wsManager *ws.Manager, messageStore *usecase.MessageStore, backends map[string]string) {
	healthHandler = NewHealthHandler(wsManager, messageStore, backends)
}

func GetHealthHandler() *HealthHandler {
	return healthHandler
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	body := map[string]interface{}{
		"status":   "Server is running",
		"time":     time.Now().Format(time.RFC3339),
		"backends": h.backends,
	}
	if h.wsManager != nil {
		body["websocket_sessions"] = h.wsManager.Count()
	}
	if h.messageStore != nil {
		body["replica_failures"] = h.messageStore.Stats()
	}
	return c.JSON(http.StatusOK, body)
}

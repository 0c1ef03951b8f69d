package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"

	"clawdash/client"
)

// Gateway states reported by /api/health.
const (
	StatusOnline   = "online"
	StatusOffline  = "offline"
	StatusDegraded = "degraded"
)

type healthResponse struct {
	OpenClaw string   `json:"openclaw"`
	UptimeMs *float64 `json:"uptimeMs"`
}

type statusOnly struct {
	OpenClaw string `json:"openclaw"`
}

// health probes the gateway with channels.status. A gateway that cannot be reached or
// refuses the handshake is offline; one that answers the handshake but fails or stalls
// on the method is degraded. The route itself always answers 200.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	payload, err := h.invoker.Invoke(r.Context(), "channels.status", map[string]any{}, h.healthTimeout)
	if err != nil {
		status := classify(err)
		h.logger.Info("gateway health probe failed", "status", status, "error", err)
		writeJSON(w, http.StatusOK, statusOnly{OpenClaw: status})
		return
	}

	var status struct {
		UptimeMs *float64 `json:"uptimeMs"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &status); err != nil {
			h.logger.Debug("channels.status payload without uptime", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{OpenClaw: StatusOnline, UptimeMs: status.UptimeMs})
}

func classify(err error) string {
	var te *client.TransportError
	var rejected *client.HandshakeRejectedError
	if errors.As(err, &te) || errors.As(err, &rejected) {
		return StatusOffline
	}
	return StatusDegraded
}

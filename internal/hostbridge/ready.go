package hostbridge

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// ReadySignal is what the embedding page sends once its listener is up.
type ReadySignal struct {
	Action string `json:"action"`
	Origin string `json:"origin,omitempty"`
	PageID string `json:"pageId,omitempty"`
}

// ReadyHandler accepts the host's "parent ready" signal. It only logs; the
// wizard works the same whether or not the signal ever arrives.
func ReadyHandler(log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var sig ReadySignal
		blob, _ := io.ReadAll(io.LimitReader(r.Body, 4<<10))
		if len(blob) > 0 {
			if err := json.Unmarshal(blob, &sig); err != nil {
				log.Debug("ignoring malformed parent ready signal", zap.Error(err))
			}
		}
		if sig.Origin == "" {
			sig.Origin = r.Header.Get("Origin")
		}
		log.Info("host parent ready",
			zap.String("action", sig.Action),
			zap.String("origin", sig.Origin),
			zap.String("page_id", sig.PageID))
		w.WriteHeader(http.StatusNoContent)
	})
}

package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nl2sql-gateway/sqlgate/internal/audit"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleAuditStream upgrades the connection and streams every pipeline
// audit event until the client disconnects. There is no inbound
// message protocol here, unlike the live-query subscribe/unsubscribe
// handshake this is grounded on — a subscriber only ever receives.
func HandleAuditStream(hub *audit.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("ws_upgrade_failed", zap.Error(err))
			return
		}
		defer conn.Close()

		_, unsubscribe := hub.Subscribe(conn)
		defer unsubscribe()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) &&
					(closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway) {
					log.Info("ws_closed", zap.Int("code", closeErr.Code))
				} else {
					log.Warn("ws_closed_abnormally", zap.Error(err))
				}
				return
			}
		}
	}
}

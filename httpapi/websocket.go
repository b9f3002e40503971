package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// echoUpgrader performs the RFC 6455 handshake for /echo. CheckOrigin is permissive: the core has no same-origin
// policy of its own, matching Regentag-go1090's general posture of trusting
// its local network.
var echoUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveEcho upgrades the connection and echoes every message back in
// kind, until the client closes or an error occurs.
func (s *Server) serveEcho(w http.ResponseWriter, r *http.Request) {
	conn, err := echoUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("[HTTP][echo] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(msgType, data); err != nil {
			return
		}
	}
}

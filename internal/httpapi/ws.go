package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"analysisd/internal/analysis"
	"analysisd/pkg/types"
)

const wsWriteWait = 10 * time.Second

// wsHandler serves GET /ws. Each text frame carrying an AnalyzeRequest starts
// one analysis; its notifications are written back as JSON frames. Requests on
// one connection run one after another.
func wsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096}
		if corsEnabled {
			up.CheckOrigin = originAllowed
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error.
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxBodyBytes)

		lvl := requestLogLevel(r)
		write := func(n types.Notification) error {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(n); err != nil {
				return err
			}
			countStreamLine("ws", string(n.Kind))
			return nil
		}
		for {
			var req types.AnalyzeRequest
			if err := conn.ReadJSON(&req); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logEvent(r, lvl, "ws read", nil, err)
				}
				return
			}
			stream := analysis.NewStream(partialBuffer)
			if _, err := svc.Analyze(req.Prompt, stream); err != nil {
				if analysis.IsBusy(err) {
					IncrementBackpressure("busy")
				}
				if werr := write(types.Notification{Kind: types.KindError, Reason: types.ReasonRejected, Error: err.Error()}); werr != nil {
					return
				}
				continue
			}
			term, err := stream.Drain(serverBaseCtx(), write)
			if err == nil {
				err = write(term)
			}
			if err != nil {
				logEvent(r, lvl, "ws write", nil, err)
				return
			}
		}
	}
}

func originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range corsAllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

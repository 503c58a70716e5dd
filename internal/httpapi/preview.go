package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/reportfix/internal/observe"
	"github.com/MrWong99/reportfix/internal/preview"
)

const (
	// previewReadLimit bounds one inbound frame.
	previewReadLimit = 256 << 10

	previewWriteTimeout = 5 * time.Second
)

// previewFrame is an inbound message on the preview socket.
type previewFrame struct {
	Text string `json:"text"`
}

// previewError is sent back for frames that cannot be scheduled.
type previewError struct {
	Error string `json:"error"`
}

// handlePreview upgrades to a WebSocket. Every inbound {"text": ...} frame
// reschedules the connection's debounced preview; each preview that fires is
// pushed back as a JSON text frame.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("httpapi: preview upgrade", slog.Any("err", err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(previewReadLimit)

	ctx := r.Context()
	log := observe.Logger(ctx)
	session := uuid.NewString()
	defer s.preview.Cancel(session)

	deliver := func(res preview.Result) {
		if err := writeFrame(ctx, conn, res); err != nil {
			log.Debug("httpapi: preview push failed", slog.String("session", session), slog.Any("err", err))
		}
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !errors.Is(err, context.Canceled) {
					log.Debug("httpapi: preview read", slog.String("session", session), slog.Any("err", err))
				}
			}
			return
		}
		if typ != websocket.MessageText {
			conn.Close(websocket.StatusUnsupportedData, "text frames only")
			return
		}

		var f previewFrame
		if err := json.Unmarshal(data, &f); err != nil {
			_ = writeFrame(ctx, conn, previewError{Error: "frame must be {\"text\": string}"})
			continue
		}
		if err := s.preview.Schedule(session, f.Text, deliver); err != nil {
			conn.Close(websocket.StatusGoingAway, "preview unavailable")
			return
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, previewWriteTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}

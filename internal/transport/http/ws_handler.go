package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"lingua-practice-service/internal/app"
	"lingua-practice-service/internal/session"
)

// WSHandler runs a practice session over a websocket. One connection is one
// session: closing the socket abandons the session and releases its devices.
type WSHandler struct {
	service  *app.PracticeService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.PracticeService, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type textPayload struct {
	Content string `json:"content"`
}

type statePayload struct {
	State            session.State `json:"state"`
	RemainingSeconds float64       `json:"remainingSeconds"`
}

type tickPayload struct {
	RemainingSeconds float64 `json:"remainingSeconds"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and wires the socket into a practice session.
// Query params: lessonId, learnerId.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	lessonID := r.URL.Query().Get("lessonId")
	learnerID := r.URL.Query().Get("learnerId")
	if lessonID == "" || learnerID == "" {
		http.Error(w, "missing lessonId or learnerId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctrl, err := h.service.OpenSession(r.Context(), learnerID, lessonID)
	if ctrl == nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer h.service.CloseSession(learnerID)

	events, cancel := ctrl.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- translateEvent(ev):
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	if err != nil {
		// Recoverable device error: the session stays in Preparing and the
		// learner can grant permission and skip again.
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.handleInbound(r, learnerID, ctrl, inbound, send)
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handleInbound(r *http.Request, learnerID string, ctrl *session.Controller, inbound inboundMessage, send chan<- outboundMessage[any]) {
	fail := func(err error) {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
	}

	switch inbound.Type {
	case "skipPrep":
		if err := ctrl.SkipPreparation(r.Context()); err != nil {
			fail(err)
		}
	case "stop":
		if err := ctrl.StopCapture(r.Context()); err != nil {
			fail(err)
		}
	case "draft":
		var payload textPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail(err)
			return
		}
		ctrl.UpdateDraft(payload.Content)
	case "text":
		var payload textPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail(err)
			return
		}
		if err := ctrl.FinalizeText(r.Context(), payload.Content); err != nil {
			fail(err)
		}
	case "retry":
		if err := ctrl.Retry(r.Context()); err != nil {
			fail(err)
		}
	case "submit":
		sub, err := h.service.Submit(r.Context(), learnerID)
		if err != nil {
			fail(err)
			return
		}
		send <- outboundMessage[any]{Type: "submission", Payload: sub}
	case "abandon":
		ctrl.Abandon()
	default:
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
	}
}

func translateEvent(ev session.Event) outboundMessage[any] {
	switch ev.Type {
	case session.EventTick:
		return outboundMessage[any]{Type: "tick", Payload: tickPayload{RemainingSeconds: ev.Remaining.Seconds()}}
	case session.EventAttempt:
		return outboundMessage[any]{Type: "attempt", Payload: ev.Attempt}
	default:
		return outboundMessage[any]{Type: "state", Payload: statePayload{State: ev.State, RemainingSeconds: ev.Remaining.Seconds()}}
	}
}

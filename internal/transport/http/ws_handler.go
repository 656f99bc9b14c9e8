package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/domain"
)

type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService) *WSHandler {
	return &WSHandler{
		service: service,
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

type loadPayload struct {
	Topics []string `json:"topics"`
}

type selectPayload struct {
	QuestionID  string `json:"questionId"`
	ChoiceIndex *int   `json:"choiceIndex"`
}

type gotoPayload struct {
	Index int `json:"index"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type sessionPayload struct {
	SessionID string `json:"sessionId"`
}

type hintPayload struct {
	Message       string `json:"message"`
	QuestionIndex int    `json:"questionIndex"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and drives one quiz session per connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := context.Background()
	h.service.Open(sessionID)
	defer h.service.Close(ctx, sessionID)

	updates, cancel, err := h.service.Subscribe(ctx, sessionID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// emit never blocks once the connection is shutting down.
	emit := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-closeSignals:
		}
	}

	// single writer: gorilla connections support one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "session", Payload: sessionPayload{SessionID: sessionID}}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				emit(outboundMessage[any]{Type: "state", Payload: update})
			case <-closeSignals:
				return
			}
		}
	}()

	loadCtx, cancelLoads := context.WithCancel(ctx)
	var loads sync.WaitGroup

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "load":
			var payload loadPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				emit(errorMessage("invalid load payload"))
				continue
			}
			// Generation can take seconds; state arrives through the subscription.
			loads.Add(1)
			go func() {
				defer loads.Done()
				err := h.service.Load(loadCtx, sessionID, payload.Topics)
				if err != nil && !errors.Is(err, domain.ErrStaleLoad) && loadCtx.Err() == nil {
					emit(errorMessage(err.Error()))
				}
			}()
		case "select":
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.ChoiceIndex == nil {
				emit(errorMessage("invalid select payload"))
				continue
			}
			h.reply(emit, h.service.SelectAnswer(ctx, sessionID, payload.QuestionID, *payload.ChoiceIndex))
		case "next":
			h.reply(emit, h.service.Next(ctx, sessionID))
		case "previous":
			h.reply(emit, h.service.Previous(ctx, sessionID))
		case "goto":
			var payload gotoPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				emit(errorMessage("invalid goto payload"))
				continue
			}
			h.reply(emit, h.service.GoTo(ctx, sessionID, payload.Index))
		case "submit":
			_, err := h.service.Submit(ctx, sessionID)
			h.reply(emit, err)
		case "retake":
			h.reply(emit, h.service.Retake(ctx, sessionID))
		default:
			emit(errorMessage("unsupported message type"))
		}
	}

	cancelLoads()
	close(closeSignals)
	loads.Wait()
	<-updatesDone
	close(send)
	<-writerDone
}

// reply turns a use-case error into a hint (gating) or error message. Success is
// reported through the state subscription.
func (h *WSHandler) reply(emit func(outboundMessage[any]), err error) {
	if err == nil {
		return
	}
	var gate *domain.GatingError
	if errors.As(err, &gate) {
		emit(outboundMessage[any]{Type: "hint", Payload: hintPayload{
			Message:       domain.AnswerRequiredHint,
			QuestionIndex: gate.Index,
		}})
		return
	}
	emit(errorMessage(err.Error()))
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}

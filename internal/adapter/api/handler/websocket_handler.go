package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"freelancehub/internal/adapter/api/middleware"
	"freelancehub/internal/domain/entity"
	"freelancehub/internal/infrastructure/firebase"
	"freelancehub/internal/infrastructure/ratelimit"
	ws "freelancehub/internal/infrastructure/websocket"
	"freelancehub/internal/usecase"
	"freelancehub/pkg/errors"
	"freelancehub/pkg/logger"
	"freelancehub/pkg/response"
)

// WebSocketHandler runs one SyncController per connection and streams its
// snapshots to the client as state frames.
type WebSocketHandler struct {
	wsManager *ws.Manager
	verifier  firebase.TokenVerifier
	deps      usecase.ControllerDeps
	limiter   *ratelimit.RateLimiter
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewWebSocketHandler takes the controller dependencies without Auth; every
// connection gets its own token backed auth source.
func NewWebSocketHandler(wsManager *ws.Manager, verifier firebase.TokenVerifier, deps usecase.ControllerDeps, limiter *ratelimit.RateLimiter) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager: wsManager,
		verifier:  verifier,
		deps:      deps,
		limiter:   limiter,
	}
}

// HandleWebSocket authenticates with a bearer header or ?token=, then
// upgrades. ?viewport=narrow and ?counterpart=&proposal= seed the session.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	token := middleware.BearerToken(c.Request())
	if token == "" {
		token = c.QueryParam("token")
	}
	if token == "" {
		return response.Error(c, errors.Unauthorized("Authentication required", nil))
	}

	auth := firebase.NewTokenAuthSource(h.verifier)
	userID, err := auth.SignIn(c.Request().Context(), token)
	if err != nil {
		return response.Error(c, err)
	}

	viewport := usecase.ViewportWide
	if usecase.Viewport(c.QueryParam("viewport")) == usecase.ViewportNarrow {
		viewport = usecase.ViewportNarrow
	}
	var link *usecase.DeepLink
	if counterpart := c.QueryParam("counterpart"); counterpart != "" {
		link = &usecase.DeepLink{CounterpartID: counterpart, ProposalID: c.QueryParam("proposal")}
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		logger.Warn("WebSocket upgrade failed for %s: %v", userID, err)
		auth.SignOut()
		return nil
	}

	client := ws.NewClient(userID, conn)
	if !h.wsManager.Attach(client) {
		auth.SignOut()
		conn.Close()
		return nil
	}

	s := h.newSession(client, auth)
	go client.WritePump()

	if err := s.controller.Mount(s.ctx, link, viewport); err != nil {
		logger.Error("WebSocket mount failed for %s: %v", userID, err)
		s.close()
		h.wsManager.Detach(client)
		return nil
	}
	go client.ReadPump(h.wsManager, s.handle, s.close)
	return nil
}

type wsSession struct {
	client     *ws.Client
	auth       *firebase.TokenAuthSource
	controller *usecase.SyncController
	presence   *usecase.PresenceTracker
	limiter    *ratelimit.RateLimiter
	ctx        context.Context
	cancel     context.CancelFunc
}

func (h *WebSocketHandler) newSession(client *ws.Client, auth *firebase.TokenAuthSource) *wsSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &wsSession{
		client:   client,
		auth:     auth,
		presence: h.deps.Presence,
		limiter:  h.limiter,
		ctx:      ctx,
		cancel:   cancel,
	}
	deps := h.deps
	deps.Auth = auth
	s.controller = usecase.NewSyncController(deps, s.pushState)
	return s
}

func (s *wsSession) pushState(snapshot usecase.ViewSnapshot) {
	s.client.PushState(ws.NewFrame(ws.FrameState, "", snapshot))
}

func (s *wsSession) close() {
	s.controller.Unmount()
	s.auth.SignOut()
	s.cancel()
}

func (s *wsSession) reply(requestID string, data interface{}, err error) {
	if err != nil {
		s.client.Enqueue(ws.NewErrorFrame(requestID, err))
		return
	}
	s.client.Enqueue(ws.NewFrame(ws.FrameAck, requestID, data))
}

func (s *wsSession) allow(action string) error {
	if allowed, _ := s.limiter.Allow(s.client.UserID, action); !allowed {
		return errors.TooManyRequests("Rate limit exceeded for " + action)
	}
	return nil
}

func (s *wsSession) handle(raw []byte) {
	var cmd ws.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		s.reply("", nil, errors.BadRequest("Malformed frame", err))
		return
	}

	switch cmd.Type {
	case ws.CommandPing:
		if s.presence != nil {
			if err := s.presence.Heartbeat(s.ctx, s.client.UserID); err != nil {
				logger.Warn("Heartbeat Error for %s: %v", s.client.UserID, err)
			}
		}
		s.client.Enqueue(ws.NewFrame(ws.FramePong, cmd.RequestID, nil))

	case ws.CommandSend:
		s.send(&cmd)

	default:
		data, err := s.dispatch(&cmd)
		s.reply(cmd.RequestID, data, err)
	}
}

func (s *wsSession) dispatch(cmd *ws.Command) (interface{}, error) {
	switch cmd.Type {
	case ws.CommandSelect:
		var data ws.SelectData
		if err := cmd.Decode(&data); err != nil {
			return nil, err
		}
		if data.ConversationID == "" {
			return nil, errors.BadRequest("conversation_id is required", nil)
		}
		return nil, s.controller.Select(data.ConversationID)

	case ws.CommandBack:
		s.controller.Back()
		return nil, nil

	case ws.CommandViewport:
		var data ws.ViewportData
		if err := cmd.Decode(&data); err != nil {
			return nil, err
		}
		viewport := usecase.Viewport(data.Viewport)
		if viewport != usecase.ViewportWide && viewport != usecase.ViewportNarrow {
			return nil, errors.BadRequest("viewport must be wide or narrow", nil)
		}
		s.controller.SetViewport(viewport)
		return nil, nil

	case ws.CommandTyping:
		var data ws.TypingData
		if err := cmd.Decode(&data); err != nil {
			return nil, err
		}
		if data.Typing {
			if err := s.allow(ratelimit.ActionTyping); err != nil {
				return nil, err
			}
		}
		return nil, s.controller.Typing(s.ctx, data.Typing)

	case ws.CommandDeepLink:
		var data ws.DeepLinkData
		if err := cmd.Decode(&data); err != nil {
			return nil, err
		}
		return nil, s.controller.OpenDeepLink(usecase.DeepLink{CounterpartID: data.CounterpartID, ProposalID: data.ProposalID})

	case ws.CommandMarkRead:
		marked, err := s.controller.MarkAsRead(s.ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{"marked": marked}, nil

	case ws.CommandPresence:
		var data ws.PresenceData
		if err := cmd.Decode(&data); err != nil {
			return nil, err
		}
		if s.presence == nil {
			return nil, errors.Internal("Presence is not configured", nil)
		}
		var device *entity.DeviceInfo
		if data.Platform != "" || data.UserAgent != "" {
			device = &entity.DeviceInfo{Platform: data.Platform, UserAgent: data.UserAgent}
		}
		return nil, s.presence.SetStatus(s.ctx, s.client.UserID, entity.PresenceStatus(data.Status), device)

	case ws.CommandAuth:
		var data ws.AuthData
		if err := cmd.Decode(&data); err != nil {
			return nil, err
		}
		return nil, s.auth.Refresh(s.ctx, data.Token, s.client.UserID)
	}
	return nil, errors.BadRequest("Unknown command "+cmd.Type, nil)
}

// send runs off the read loop because attachment uploads can take a while.
func (s *wsSession) send(cmd *ws.Command) {
	var data ws.SendData
	if err := cmd.Decode(&data); err != nil {
		s.reply(cmd.RequestID, nil, err)
		return
	}
	if err := s.allow(ratelimit.ActionSendMessage); err != nil {
		s.reply(cmd.RequestID, nil, err)
		return
	}

	files := make([]*entity.AttachmentFile, 0, len(data.Attachments))
	for _, a := range data.Attachments {
		files = append(files, &entity.AttachmentFile{
			FileName:    a.FileName,
			ContentType: a.ContentType,
			Size:        int64(len(a.Content)),
			Content:     bytes.NewReader(a.Content),
		})
	}

	go func() {
		result, err := s.controller.Send(s.ctx, data.Text, files, data.ReplyTo)
		if err != nil {
			s.reply(cmd.RequestID, nil, err)
			return
		}
		ack := map[string]interface{}{"message_id": result.MessageID}
		if result.PartialFailure() {
			failed := make([]failedAttachment, 0, len(result.FailedAttachments))
			for _, f := range result.FailedAttachments {
				failed = append(failed, failedAttachment{FileName: f.FileName, Reason: describe(f.Err)})
			}
			ack["failed_attachments"] = failed
		}
		s.reply(cmd.RequestID, ack, nil)
	}()
}

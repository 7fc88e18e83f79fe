package handler

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/usecase"
	"freelancehub/pkg/errors"
	"freelancehub/pkg/logger"
	"freelancehub/pkg/response"

	"github.com/labstack/echo/v4"
)

const maxAttachmentsPerMessage = 10

type MessageHandler struct {
	messageStore       *usecase.MessageStore
	maxAttachmentBytes int64
}

func NewMessageHandler(messageStore *usecase.MessageStore, maxAttachmentBytes int64) *MessageHandler {
	return &MessageHandler{
		messageStore:       messageStore,
		maxAttachmentBytes: maxAttachmentBytes,
	}
}

type sendMessageRequest struct {
	Text             string                 `json:"text"`
	Type             string                 `json:"type" validate:"omitempty,oneof=text location contact"`
	ReplyToMessageID string                 `json:"reply_to_message_id"`
	Location         *entity.Location       `json:"location"`
	Metadata         map[string]interface{} `json:"metadata"`
}

type editMessageRequest struct {
	Text string `json:"text" validate:"required,max=10000"`
}

type reactionRequest struct {
	Emoji string `json:"emoji" validate:"required,max=16"`
}

type sendMessageResult struct {
	MessageID string          `json:"message_id"`
	Message   *entity.Message `json:"message"`
}

type failedAttachment struct {
	FileName string `json:"file_name"`
	Reason   string `json:"reason"`
}

// SendMessage accepts a JSON body, or multipart/form-data with a "text"
// field and up to ten "attachments" files.
func (h *MessageHandler) SendMessage(c echo.Context) error {
	conversationID := c.Param("id")
	userID := c.Get("uid").(string)

	draft := &usecase.MessageDraft{SenderID: userID}
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		files, closeAll, err := h.readAttachments(c)
		if err != nil {
			return response.Error(c, err)
		}
		defer closeAll()
		draft.Text = c.FormValue("text")
		draft.ReplyToMessageID = c.FormValue("reply_to_message_id")
		draft.Attachments = files
	} else {
		var req sendMessageRequest
		if err := c.Bind(&req); err != nil {
			return response.Error(c, errors.BadRequest("Invalid request body", err))
		}
		if err := c.Validate(&req); err != nil {
			return response.Error(c, err)
		}
		draft.Text = req.Text
		draft.Type = entity.MessageType(req.Type)
		draft.ReplyToMessageID = req.ReplyToMessageID
		draft.Location = req.Location
		draft.Metadata = req.Metadata
	}

	result, err := h.messageStore.Send(c.Request().Context(), conversationID, draft)
	if err != nil {
		return response.Error(c, err)
	}

	payload := sendMessageResult{MessageID: result.MessageID, Message: result.Message}
	if result.PartialFailure() {
		failed := make([]failedAttachment, 0, len(result.FailedAttachments))
		for _, f := range result.FailedAttachments {
			failed = append(failed, failedAttachment{FileName: f.FileName, Reason: describe(f.Err)})
		}
		return response.Partial(c, payload, errors.CodeAttachmentUpload, "Some attachments could not be uploaded", failed)
	}
	return response.Created(c, payload)
}

func (h *MessageHandler) readAttachments(c echo.Context) ([]*entity.AttachmentFile, func(), error) {
	noop := func() {}
	if err := c.Request().ParseMultipartForm(h.maxAttachmentBytes); err != nil {
		return nil, noop, errors.BadRequest("Invalid multipart form", err)
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, noop, errors.BadRequest("Invalid multipart form", err)
	}
	headers := form.File["attachments"]
	if len(headers) > maxAttachmentsPerMessage {
		return nil, noop, errors.BadRequest(fmt.Sprintf("At most %d attachments per message", maxAttachmentsPerMessage), nil)
	}

	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}
	files := make([]*entity.AttachmentFile, 0, len(headers))
	for _, header := range headers {
		src, err := header.Open()
		if err != nil {
			closeAll()
			return nil, noop, errors.BadRequest("Failed to read "+header.Filename, err)
		}
		opened = append(opened, src)
		logger.Debug("Received attachment: %s, size: %d bytes, type: %s", header.Filename, header.Size, header.Header.Get("Content-Type"))
		files = append(files, &entity.AttachmentFile{
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Content:     src,
		})
	}
	return files, closeAll, nil
}

// GetMessages returns the merged history of both replicas.
func (h *MessageHandler) GetMessages(c echo.Context) error {
	conversationID := c.Param("id")
	userID := c.Get("uid").(string)

	messages, err := h.messageStore.History(c.Request().Context(), conversationID, userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, messages)
}

func (h *MessageHandler) MarkAsRead(c echo.Context) error {
	conversationID := c.Param("id")
	userID := c.Get("uid").(string)

	marked, err := h.messageStore.MarkAsRead(c.Request().Context(), conversationID, userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]int{"marked": marked})
}

func (h *MessageHandler) EditMessage(c echo.Context) error {
	var req editMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	err := h.messageStore.Edit(c.Request().Context(), c.Param("id"), c.Param("messageId"), userID, req.Text)
	if err != nil {
		return response.Error(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *MessageHandler) DeleteMessage(c echo.Context) error {
	userID := c.Get("uid").(string)
	err := h.messageStore.Delete(c.Request().Context(), c.Param("id"), c.Param("messageId"), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *MessageHandler) ToggleReaction(c echo.Context) error {
	var req reactionRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	added, err := h.messageStore.ToggleReaction(c.Request().Context(), c.Param("id"), c.Param("messageId"), userID, req.Emoji)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"emoji": req.Emoji,
		"added": added,
	})
}

func describe(err error) string {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "upload failed"
}

package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound             = "NOT_FOUND"
	CodeBadRequest           = "BAD_REQUEST"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeConflict             = "CONFLICT"
	CodeInternal             = "INTERNAL_ERROR"
	CodeTooManyRequests      = "TOO_MANY_REQUESTS"
	CodeEmptyMessage         = "EMPTY_MESSAGE"
	CodeAttachmentUpload     = "ATTACHMENT_UPLOAD_FAILED"
	CodeSubcollectionWrite   = "SUBCOLLECTION_WRITE_FAILED"
	CodeConversationNotFound = "CONVERSATION_NOT_FOUND"
	CodeSubscriptionFailed   = "SUBSCRIPTION_FAILED"
	CodeAttachmentTooLarge   = "ATTACHMENT_TOO_LARGE"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Forbidden(message string, err error) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

func Conflict(message string, err error) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
		Err:     err,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func TooManyRequests(message string) *AppError {
	return &AppError{
		Code:    CodeTooManyRequests,
		Message: message,
		Status:  http.StatusTooManyRequests,
	}
}

// EmptyMessage is returned before any I/O when a draft has neither text nor attachments.
func EmptyMessage() *AppError {
	return &AppError{
		Code:    CodeEmptyMessage,
		Message: "Message must contain text or at least one attachment",
		Status:  http.StatusBadRequest,
	}
}

// AttachmentUpload means every attachment of a draft failed to upload; nothing was persisted.
func AttachmentUpload(err error) *AppError {
	return &AppError{
		Code:    CodeAttachmentUpload,
		Message: "All attachment uploads failed, message was not sent",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// SubcollectionWrite is fatal to a send: the canonical replica was not written.
func SubcollectionWrite(err error) *AppError {
	return &AppError{
		Code:    CodeSubcollectionWrite,
		Message: "Failed to persist message to conversation",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func ConversationNotFound(conversationID string, err error) *AppError {
	return &AppError{
		Code:    CodeConversationNotFound,
		Message: fmt.Sprintf("Conversation %s not found", conversationID),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func SubscriptionFailed(source string, err error) *AppError {
	return &AppError{
		Code:    CodeSubscriptionFailed,
		Message: fmt.Sprintf("Live updates from %s are unavailable", source),
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsNotFound matches both the generic and the conversation-specific not found codes.
func IsNotFound(err error) bool {
	return Is(err, CodeNotFound) || Is(err, CodeConversationNotFound)
}

func AttachmentTooLarge(fileName string, limit int64) *AppError {
	return &AppError{
		Code:    CodeAttachmentTooLarge,
		Message: fmt.Sprintf("Attachment %s exceeds the %d byte limit", fileName, limit),
		Status:  http.StatusRequestEntityTooLarge,
	}
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

package handler

import (
	"freelancehub/internal/domain/repository"
	"freelancehub/internal/usecase"
)

var (
	conversationHandler *ConversationHandler
	messageHandler      *MessageHandler
	presenceHandler     *PresenceHandler
)

func Setup(
	conversationUseCase *usecase.ConversationUseCase,
	messageStore *usecase.MessageStore,
	presenceTracker *usecase.PresenceTracker,
	conversations repository.ConversationRepository,
	users repository.UserRepository,
	maxAttachmentBytes int64,
) {
	conversationHandler = NewConversationHandler(conversationUseCase, conversations, users)
	messageHandler = NewMessageHandler(messageStore, maxAttachmentBytes)
	presenceHandler = NewPresenceHandler(presenceTracker, conversationUseCase)
}

func GetConversationHandler() *ConversationHandler {
	return conversationHandler
}

func GetMessageHandler() *MessageHandler {
	return messageHandler
}

func GetPresenceHandler() *PresenceHandler {
	return presenceHandler
}

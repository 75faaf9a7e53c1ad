package model

type Conversation struct {
	ConversationID string `json:"conversationId"`
}

type ConversationInfo struct {
	Conversation Conversation `json:"conversation"`
	Messages     []string     `json:"messages"`
}

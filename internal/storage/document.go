package storage

import (
	"bytes"
	"fmt"

	"github.com/xaenox/lingua-bot/internal/jsonx"
	"github.com/xaenox/lingua-bot/internal/models"
)

// DecodeConversation accepts both stored shapes: a bare list of messages and
// an object carrying a "messages" field.
func DecodeConversation(id string, data []byte) (*models.Conversation, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return &models.Conversation{ID: id}, nil
	}

	conv := &models.Conversation{}
	switch data[0] {
	case '[':
		if err := jsonx.Unmarshal(data, &conv.Messages); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadDocument, err)
		}
	case '{':
		if err := jsonx.Unmarshal(data, conv); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadDocument, err)
		}
	default:
		return nil, ErrBadDocument
	}

	if conv.ID == "" {
		conv.ID = id
	}
	for i := range conv.Messages {
		conv.Messages[i].Role = conv.Messages[i].Role.Normalize()
	}
	if n := len(conv.Messages); n > 0 {
		if conv.CreatedAt == 0 {
			conv.CreatedAt = conv.Messages[0].Timestamp
		}
		if conv.UpdatedAt == 0 {
			conv.UpdatedAt = conv.Messages[n-1].Timestamp
		}
	}
	return conv, nil
}

// EncodeConversation writes the current (object) shape.
func EncodeConversation(conv *models.Conversation) ([]byte, error) {
	return jsonx.Marshal(conv)
}

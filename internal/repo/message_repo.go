package repo

import (
	"context"

	"github.com/tbourn/go-repair-backend/internal/docstore"
	"github.com/tbourn/go-repair-backend/internal/domain"
)

func setMessageID(m *domain.Message, id string) {
	if m.MessageID == "" {
		m.MessageID = id
	}
}

// CreateMessage stores m under a fresh id with a server-assigned timestamp
// and returns the stored message.
func CreateMessage(ctx context.Context, st docstore.Store, m domain.Message) (*domain.Message, error) {
	if m.MessageID == "" {
		m.MessageID = st.NewID()
	}
	if m.Kind == "" {
		m.Kind = domain.MessageKindText
	}
	body, err := toDoc(m, "timestamp")
	if err != nil {
		return nil, err
	}
	res, err := st.Set(ctx, domain.CollectionMessages, m.MessageID, body)
	if err != nil {
		return nil, err
	}
	m.SentAt = res.UpdateTime
	return &m, nil
}

// MessagesQuery lists a chat's messages oldest first. It needs the
// messages(chatId, timestamp) composite index.
func MessagesQuery(chatID string) docstore.Query {
	return docstore.From(domain.CollectionMessages).
		Where("chatId", chatID).
		OrderBy("timestamp", docstore.Asc)
}

// ListMessages runs MessagesQuery once.
func ListMessages(ctx context.Context, st docstore.Store, chatID string) ([]domain.Message, error) {
	docs, err := st.Query(ctx, MessagesQuery(chatID))
	if err != nil {
		return nil, err
	}
	return DecodeMessages(docs), nil
}

// DecodeMessages maps message documents, skipping malformed ones.
func DecodeMessages(docs []docstore.Document) []domain.Message {
	return decodeAll(docs, setMessageID)
}

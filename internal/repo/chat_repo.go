package repo

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/tbourn/go-repair-backend/internal/docstore"
	"github.com/tbourn/go-repair-backend/internal/domain"
)

func setChatID(c *domain.ChatSession, id string) {
	if c.ChatID == "" {
		c.ChatID = id
	}
}

// GetChat returns the chat session stored under chatID, or ErrNotFound.
func GetChat(ctx context.Context, st docstore.Store, chatID string) (*domain.ChatSession, error) {
	doc, err := st.Get(ctx, domain.CollectionChats, chatID)
	if err != nil {
		return nil, err
	}
	return decodeOne(doc, setChatID)
}

// PutChat writes the whole session with a server-assigned updatedAt and
// returns the commit time.
func PutChat(ctx context.Context, st docstore.Store, c domain.ChatSession) (time.Time, error) {
	m, err := toDoc(c, "updatedAt")
	if err != nil {
		return time.Time{}, err
	}
	res, err := st.Set(ctx, domain.CollectionChats, c.ChatID, m)
	if err != nil {
		return time.Time{}, err
	}
	return res.UpdateTime, nil
}

// TouchChat updates the last-message summary of an existing session. It
// returns ErrNotFound when the session document is missing.
func TouchChat(ctx context.Context, st docstore.Store, chatID, lastMessage string) error {
	_, err := st.Update(ctx, domain.CollectionChats, chatID, map[string]any{
		"lastMessage": lastMessage,
		"updatedAt":   docstore.ServerTimestamp,
	})
	return err
}

// ChatsForOwnerQuery lists an owner's chats, most recently updated first.
// It needs the chats(ownerUid, updatedAt) composite index.
func ChatsForOwnerQuery(ownerID string) docstore.Query {
	return docstore.From(domain.CollectionChats).
		Where("ownerUid", ownerID).
		OrderBy("updatedAt", docstore.Desc)
}

// ChatsForOwnerUnorderedQuery is ChatsForOwnerQuery without ordering; it
// works without a composite index.
func ChatsForOwnerUnorderedQuery(ownerID string) docstore.Query {
	return docstore.From(domain.CollectionChats).Where("ownerUid", ownerID)
}

// ListChatsForClient returns a client's chats, most recently updated first.
// Sorting happens here so no composite index is required.
func ListChatsForClient(ctx context.Context, st docstore.Store, clientID string) ([]domain.ChatSession, error) {
	docs, err := st.Query(ctx, docstore.From(domain.CollectionChats).Where("clientUid", clientID))
	if err != nil {
		return nil, err
	}
	chats := DecodeChats(docs)
	sort.SliceStable(chats, func(i, j int) bool { return chats[i].UpdatedAt.After(chats[j].UpdatedAt) })
	return chats, nil
}

// LatestChatForBusiness returns the most recently updated chat of a
// business, or (nil, nil) when it has none.
func LatestChatForBusiness(ctx context.Context, st docstore.Store, businessID string) (*domain.ChatSession, error) {
	q := docstore.From(domain.CollectionChats).
		Where("businessId", businessID).
		OrderBy("updatedAt", docstore.Desc).
		Limit(1)
	docs, err := st.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	chats := DecodeChats(docs)
	if len(chats) == 0 {
		return nil, nil
	}
	return &chats[0], nil
}

// DecodeChats maps chat documents, skipping malformed ones.
func DecodeChats(docs []docstore.Document) []domain.ChatSession {
	return decodeAll(docs, setChatID)
}

// IsNotFound reports whether err means the document does not exist.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Package services – ChatService
//
// ChatService owns the one-per-(client, business) chat sessions and their
// messages. Sessions are addressed by domain.DeriveChatID, so the client and
// the business side always resolve to the same document. Sending a message
// is a two-step saga: the message is the durable fact, and the session's
// last-message summary is an update that recreates the session when it is
// missing.
//
// Realtime reads are fail-soft: listeners deliver an empty list (or a
// one-shot fallback) instead of surfacing store errors.
package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-repair-backend/internal/docstore"
	"github.com/tbourn/go-repair-backend/internal/domain"
	"github.com/tbourn/go-repair-backend/internal/observability"
	"github.com/tbourn/go-repair-backend/internal/repo"
)

// inboxLookups bounds concurrent name lookups when building an inbox.
const inboxLookups = 4

// ChatService manages chat sessions and messages.
type ChatService struct {
	Store docstore.Store
	Names *NameResolver

	// MaxMessageRunes caps message length; longer texts are rejected with
	// ErrMessageTooLong. Zero means no limit.
	MaxMessageRunes int
}

// NewChatService constructs a ChatService.
func NewChatService(st docstore.Store, names *NameResolver) *ChatService {
	return &ChatService{Store: st, Names: names, MaxMessageRunes: 4000}
}

// GetOrCreateChat returns the session for (clientID, businessID), creating
// it with an empty summary when absent. An empty ownerID is looked up from
// the business.
func (s *ChatService) GetOrCreateChat(ctx context.Context, clientID, businessID, ownerID string) (*domain.ChatSession, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "GetOrCreateChat",
		trace.WithAttributes(
			attribute.String("client.id", clientID),
			attribute.String("business.id", businessID),
		),
	)
	defer span.End()

	clientID, businessID = strings.TrimSpace(clientID), strings.TrimSpace(businessID)
	if clientID == "" || businessID == "" {
		return nil, ErrInvalidParticipants
	}
	chatID := domain.DeriveChatID(clientID, businessID)

	c, err := repo.GetChat(ctx, s.Store, chatID)
	if err == nil {
		// Older documents may carry a stale id field.
		c.ChatID = chatID
		return c, nil
	}
	if !repo.IsNotFound(err) {
		return nil, err
	}

	if ownerID == "" && s.Names != nil {
		ownerID, _ = s.Names.BusinessOwner(ctx, businessID)
	}
	sess := domain.NewChatSession(clientID, businessID, ownerID, s.Store.Now())
	at, err := repo.PutChat(ctx, s.Store, sess)
	if err != nil {
		return nil, err
	}
	sess.UpdatedAt = at
	return &sess, nil
}

// GetChat returns the session stored under chatID.
func (s *ChatService) GetChat(ctx context.Context, chatID string) (*domain.ChatSession, bool) {
	c, err := repo.GetChat(ctx, s.Store, chatID)
	if err != nil {
		if !repo.IsNotFound(err) {
			logFrom(ctx).Warn().Err(err).Str("chat_id", chatID).Msg("chat lookup failed")
		}
		return nil, false
	}
	return c, true
}

// SendMessage appends a message to chatID and refreshes the session
// summary. A failing summary update never fails the send; a missing
// session is recreated with text as its last message.
func (s *ChatService) SendMessage(ctx context.Context, chatID, senderID, receiverID, text string) (*domain.Message, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "SendMessage",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.String("sender.id", senderID),
		),
	)
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(text) > s.MaxMessageRunes {
		return nil, ErrMessageTooLong
	}

	m, err := repo.CreateMessage(ctx, s.Store, domain.Message{
		ChatID:     chatID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Kind:       domain.MessageKindText,
	})
	if err != nil {
		return nil, err
	}
	s.refreshSummary(ctx, chatID, text)
	return m, nil
}

// refreshSummary updates the session's last message. Only a missing
// session is recreated; on other errors the update is retried once and an
// existing session is never replaced.
func (s *ChatService) refreshSummary(ctx context.Context, chatID, text string) {
	err := repo.TouchChat(ctx, s.Store, chatID, text)
	if err == nil {
		return
	}
	lg := logFrom(ctx).With().Str("chat_id", chatID).Logger()
	if !repo.IsNotFound(err) {
		lg.Warn().Err(err).Msg("last message update failed; retrying")
		err = repo.TouchChat(ctx, s.Store, chatID, text)
		if err == nil {
			return
		}
		if !repo.IsNotFound(err) {
			lg.Error().Err(err).Msg("last message update failed; session left as is")
			return
		}
	}
	lg.Warn().Msg("chat session missing; recreating")

	sess := domain.ChatSession{ChatID: chatID, LastMessage: text}
	if clientID, businessID, ok := domain.SplitChatID(chatID); ok {
		sess.ClientID, sess.BusinessID = clientID, businessID
		if s.Names != nil {
			sess.OwnerID, _ = s.Names.BusinessOwner(ctx, businessID)
		}
	}
	if _, err := repo.PutChat(ctx, s.Store, sess); err != nil {
		lg.Error().Err(err).Msg("session self-heal failed")
		return
	}
	observability.ChatSummaryHeals.Inc()
}

// ListenMessages streams the messages of chatID oldest first. Every update
// carries the full list. On a store error onUpdate receives an empty list
// and the stream ends.
func (s *ChatService) ListenMessages(ctx context.Context, chatID string, onUpdate func([]domain.Message)) *Subscription {
	return follow(ctx, s.Store, repo.MessagesQuery(chatID), "messages",
		func(docs []docstore.Document) { onUpdate(repo.DecodeMessages(docs)) },
		func(error) { onUpdate([]domain.Message{}) },
	)
}

// FetchMessagesOnce returns the messages of chatID oldest first, or an
// empty list when the store fails.
func (s *ChatService) FetchMessagesOnce(ctx context.Context, chatID string) []domain.Message {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "FetchMessagesOnce", trace.WithAttributes(attribute.String("chat.id", chatID)))
	defer span.End()

	msgs, err := repo.ListMessages(ctx, s.Store, chatID)
	if err != nil {
		logFrom(ctx).Warn().Err(err).Str("chat_id", chatID).Msg("message fetch failed")
		return []domain.Message{}
	}
	return msgs
}

// ListenChatsForOwner streams an owner's chats, most recently updated
// first. If the ordered listener fails, the unordered equality query is run
// once and its result delivered instead; if that fails too, an empty list.
func (s *ChatService) ListenChatsForOwner(ctx context.Context, ownerID string, onUpdate func([]domain.ChatSession)) *Subscription {
	return follow(ctx, s.Store, repo.ChatsForOwnerQuery(ownerID), "owner_chats",
		func(docs []docstore.Document) { onUpdate(repo.DecodeChats(docs)) },
		func(error) { onUpdate(s.unorderedChatsForOwner(ctx, ownerID)) },
	)
}

// FetchChatsForOwnerOnce is the one-shot form of ListenChatsForOwner with
// the same fallback.
func (s *ChatService) FetchChatsForOwnerOnce(ctx context.Context, ownerID string) []domain.ChatSession {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "FetchChatsForOwnerOnce", trace.WithAttributes(attribute.String("owner.id", ownerID)))
	defer span.End()

	docs, err := s.Store.Query(ctx, repo.ChatsForOwnerQuery(ownerID))
	if err != nil {
		logFrom(ctx).Warn().Err(err).Str("owner_id", ownerID).Msg("ordered chat query failed")
		return s.unorderedChatsForOwner(ctx, ownerID)
	}
	return repo.DecodeChats(docs)
}

func (s *ChatService) unorderedChatsForOwner(ctx context.Context, ownerID string) []domain.ChatSession {
	observability.ListenerFallbacks.WithLabelValues("owner_chats").Inc()
	docs, err := s.Store.Query(ctx, repo.ChatsForOwnerUnorderedQuery(ownerID))
	if err != nil {
		logFrom(ctx).Warn().Err(err).Str("owner_id", ownerID).Msg("chat fallback query failed")
		return []domain.ChatSession{}
	}
	return repo.DecodeChats(docs)
}

// Inbox returns an owner's chats with the client's display name resolved.
// Clients without a resolvable name are shown as "Client (<uid prefix>)".
func (s *ChatService) Inbox(ctx context.Context, ownerID string) []domain.InboxEntry {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Inbox", trace.WithAttributes(attribute.String("owner.id", ownerID)))
	defer span.End()

	chats := s.FetchChatsForOwnerOnce(ctx, ownerID)
	out := make([]domain.InboxEntry, len(chats))

	var g errgroup.Group
	g.SetLimit(inboxLookups)
	for i, c := range chats {
		i, c := i, c
		g.Go(func() error {
			name := ""
			if s.Names != nil {
				name, _ = s.Names.ResolveDisplayName(ctx, c.ClientID)
			}
			if name == "" {
				name = fallbackClientName(c.ClientID)
			}
			out[i] = domain.InboxEntry{Chat: c, ClientName: name}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// ListChatsForClient returns the chats a client takes part in, most
// recently updated first, or an empty list when the store fails.
func (s *ChatService) ListChatsForClient(ctx context.Context, clientID string) []domain.ChatSession {
	chats, err := repo.ListChatsForClient(ctx, s.Store, clientID)
	if err != nil {
		logFrom(ctx).Warn().Err(err).Str("client_id", clientID).Msg("client chat query failed")
		return []domain.ChatSession{}
	}
	return chats
}

func fallbackClientName(uid string) string {
	prefix := uid
	if utf8.RuneCountInString(prefix) > 6 {
		prefix = string([]rune(prefix)[:6])
	}
	return "Client (" + prefix + ")"
}

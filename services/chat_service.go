package services

import (
	"context"
	"eventmaster/contract"
	"eventmaster/domain"
	"eventmaster/errors"
	"eventmaster/moderation"
	"eventmaster/repositories"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"
)

type IChatService interface {
	AppendChatMessage(ctx context.Context, eventID string, draft domain.ChatDraft) (domain.ChatMessage, error)
	GetChatMessages(ctx context.Context, eventID string) []domain.ChatMessage
}

type ChatOption func(*ChatService)

func WithModerator(m moderation.Moderator) ChatOption {
	return func(s *ChatService) { s.moderator = &m }
}

func WithLanguageDetection(enabled bool) ChatOption {
	return func(s *ChatService) { s.detectLang = enabled }
}

func WithChatClock(now func() time.Time) ChatOption {
	return func(s *ChatService) { s.now = now }
}

// ChatService appends messages to an event's local chat. The owning event is
// not required to exist: chats are keyed by whatever id the UI passes.
type ChatService struct {
	records    *repositories.RecordStore
	resolver   contract.IResolver
	locks      contract.ILocks
	log        *slog.Logger
	moderator  *moderation.Moderator
	detectLang bool
	now        func() time.Time
}

func NewChatService(records *repositories.RecordStore, resolver contract.IResolver,
	locks contract.ILocks, log *slog.Logger, opts ...ChatOption) *ChatService {
	s := &ChatService{records: records, resolver: resolver, locks: locks, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AppendChatMessage stores the message after every message already stored.
// Its timestamp is clamped so storage order and timestamp order agree, and
// its id (Unix milliseconds) is bumped to stay strictly increasing per event.
func (s *ChatService) AppendChatMessage(ctx context.Context, eventID string, draft domain.ChatDraft) (domain.ChatMessage, error) {
	text := strings.TrimSpace(draft.Text)
	var fields []errors.FieldError
	if strings.TrimSpace(eventID) == "" {
		fields = append(fields, errors.FieldError{Field: "eventId", Rule: "required", Message: "is required"})
	}
	if text == "" {
		fields = append(fields, errors.FieldError{Field: "text", Rule: "required", Message: "is required"})
	}
	if len(fields) > 0 {
		return domain.ChatMessage{}, errors.NewValidationError(fields...)
	}

	message := domain.ChatMessage{EventID: eventID, Text: text, UserID: draft.UserID}
	if s.detectLang {
		message.Lang = moderation.DetectLanguage(text)
	}
	if s.moderator != nil {
		sanitized, words := s.moderator.Censor(text)
		if len(words) > 0 {
			s.log.Info("Chat message censored", "event_id", eventID, "words", len(words))
		}
		message.Text = sanitized
	}

	ns := s.resolver.Resolve(ctx)
	if message.UserID == "" {
		message.UserID = ns.String()
	}
	unlock := s.locks.Lock(ns)
	defer unlock()

	chats := s.records.LoadChats(ctx, ns)
	at := draft.Timestamp
	if at.IsZero() {
		at = s.now()
	}
	message.Timestamp = stamp(at)
	message.ID = message.Timestamp.UnixMilli()
	if last, ok := lastOf(chats, eventID); ok {
		if message.Timestamp.Before(last.Timestamp) {
			message.Timestamp = last.Timestamp
		}
		if message.ID <= last.ID {
			message.ID = last.ID + 1
		}
	}

	if err := s.records.SaveChats(ctx, ns, append(chats, message)); err != nil {
		return domain.ChatMessage{}, err
	}
	return message, nil
}

// GetChatMessages returns the event's messages in storage order.
func (s *ChatService) GetChatMessages(ctx context.Context, eventID string) []domain.ChatMessage {
	chats := s.records.LoadChats(ctx, s.resolver.Resolve(ctx))
	return lo.Filter(chats, func(m domain.ChatMessage, _ int) bool { return m.EventID == eventID })
}

func lastOf(chats []domain.ChatMessage, eventID string) (domain.ChatMessage, bool) {
	for i := len(chats) - 1; i >= 0; i-- {
		if chats[i].EventID == eventID {
			return chats[i], true
		}
	}
	return domain.ChatMessage{}, false
}

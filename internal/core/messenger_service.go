package core

import (
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/whispr-im/whispr/internal/auth"
	"github.com/whispr-im/whispr/internal/store"
)

// ValidationError marks malformed or missing input. The request layer maps it
// to a 400 response.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func invalidf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

type MessengerService struct {
	dbStore *store.SQLiteStore
}

func NewMessengerService(db *store.SQLiteStore) *MessengerService {
	return &MessengerService{dbStore: db}
}

// RegisterGuest creates a user row and its guest session in one step and
// returns both; the session token is the caller's credential from here on.
func (s *MessengerService) RegisterGuest(guestName string) (*store.User, *store.GuestSession, error) {
	guestName = strings.TrimSpace(guestName)
	if guestName == "" {
		return nil, nil, invalidf("guest name is required")
	}

	userID := uuid.NewString()
	token, err := auth.GenerateToken()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate guest token: %w", err)
	}

	user, session, err := s.dbStore.CreateGuestUser(userID, guestName, token)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create guest account: %w", err)
	}
	return user, session, nil
}

// AuthenticateToken resolves a bearer token to its session and owning user.
// A nil user with nil error means the token is malformed, unknown or expired;
// the caller decides on 401 semantics.
func (s *MessengerService) AuthenticateToken(token string) (*store.User, *store.GuestSession, error) {
	if !auth.IsValidToken(token) {
		return nil, nil, nil
	}

	session, err := s.dbStore.GetSessionByToken(token)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if session == nil {
		return nil, nil, nil
	}

	user, err := s.dbStore.GetUserByID(session.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up session user: %w", err)
	}
	if user == nil {
		return nil, nil, nil
	}

	if err := s.dbStore.TouchUserLastActive(user.ID); err != nil {
		log.Printf("Failed to touch last_active for user %s: %v", user.ID, err)
	}
	return user, session, nil
}

func (s *MessengerService) GetUser(userID string) (*store.User, error) {
	return s.dbStore.GetUserByID(userID)
}

// StartConversation finds or creates the conversation for the given
// participant set. Input order does not matter.
func (s *MessengerService) StartConversation(participantIDs []string) (*store.Conversation, error) {
	if len(participantIDs) < 2 {
		return nil, invalidf("at least 2 participants are required")
	}
	for _, id := range participantIDs {
		if strings.TrimSpace(id) == "" {
			return nil, invalidf("participant ids must be non-empty")
		}
		// The canonical participant key is comma-joined; an id containing a
		// comma would make distinct participant sets collide on one key.
		if strings.Contains(id, ",") {
			return nil, invalidf("participant ids must not contain commas")
		}
	}
	return s.dbStore.GetOrCreateConversation(participantIDs)
}

func (s *MessengerService) ListConversations(userID string) ([]store.Conversation, error) {
	return s.dbStore.GetUserConversations(userID)
}

// SendMessage validates the text/image variant and appends the message. The
// sender id always comes from the authenticated session, never from the
// request body.
func (s *MessengerService) SendMessage(conversationID, senderID, content, msgType string, imageURL, imageAlt *string) (*store.Message, error) {
	if msgType == "" {
		msgType = store.MessageTypeText
	}

	switch msgType {
	case store.MessageTypeText:
		if strings.TrimSpace(content) == "" {
			return nil, invalidf("message content cannot be empty")
		}
		if imageURL != nil || imageAlt != nil {
			return nil, invalidf("text messages cannot carry image fields")
		}
	case store.MessageTypeImage:
		if imageURL == nil || strings.TrimSpace(*imageURL) == "" {
			return nil, invalidf("image messages require an image URL")
		}
	default:
		return nil, invalidf("unknown message type %q", msgType)
	}

	msg := store.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		ImageURL:       imageURL,
		ImageAlt:       imageAlt,
		Type:           msgType,
	}
	if err := s.dbStore.CreateMessage(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMessages returns a page of messages in chronological order. The page is
// taken from the most recent end of the history.
func (s *MessengerService) GetMessages(conversationID string, limit, offset int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.dbStore.GetConversationMessages(conversationID, limit, offset)
}

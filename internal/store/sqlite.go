package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// sessionTTL is how long a guest session stays valid after issuance.
const sessionTTL = 30 * 24 * time.Hour

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY, -- UUID
        email TEXT UNIQUE,
        name TEXT NOT NULL,
        avatar TEXT,
        is_guest BOOLEAN DEFAULT FALSE,
        guest_name TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        last_active DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY, -- UUID
        participants TEXT UNIQUE NOT NULL, -- canonical sorted ids, comma-joined
        last_message_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        conversation_id TEXT NOT NULL,
        sender_id TEXT NOT NULL,
        content TEXT NOT NULL,
        image_url TEXT,
        image_alt TEXT,
        type TEXT NOT NULL DEFAULT 'text' CHECK (type IN ('text', 'image')),
        read_by TEXT NOT NULL DEFAULT '[]', -- JSON array of user ids
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id),
        FOREIGN KEY (sender_id) REFERENCES users (id)
    );

    CREATE TABLE IF NOT EXISTS calls (
        id TEXT PRIMARY KEY, -- UUID
        conversation_id TEXT NOT NULL,
        caller_id TEXT NOT NULL,
        receiver_id TEXT NOT NULL,
        type TEXT DEFAULT 'voice' CHECK (type IN ('voice', 'video')),
        status TEXT DEFAULT 'pending' CHECK (status IN ('pending', 'active', 'ended')),
        started_at DATETIME,
        ended_at DATETIME,
        duration INTEGER,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id),
        FOREIGN KEY (caller_id) REFERENCES users (id),
        FOREIGN KEY (receiver_id) REFERENCES users (id)
    );

    CREATE TABLE IF NOT EXISTS guest_sessions (
        token TEXT PRIMARY KEY, -- 64 lowercase hex chars
        guest_name TEXT NOT NULL,
        user_id TEXT NOT NULL UNIQUE,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        expires_at DATETIME NOT NULL,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id);
    CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages (sender_id);
    CREATE INDEX IF NOT EXISTS idx_guest_sessions_user ON guest_sessions (user_id);
    `
	_, err := s.db.Exec(schema)
	return err
}

// isConstraintViolation reports whether err is a SQLite uniqueness or other
// constraint failure, so callers can map it to ErrConflict.
func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// User methods

func (s *SQLiteStore) CreateUser(id, name string, email *string, isGuest bool, guestName *string) (*User, error) {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		"INSERT INTO users (id, name, email, is_guest, guest_name, created_at, last_active, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		id, name, email, isGuest, guestName, now, now, now,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, fmt.Errorf("user %s already exists: %w", id, ErrConflict)
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return &User{
		ID:         id,
		Email:      email,
		Name:       name,
		IsGuest:    isGuest,
		GuestName:  guestName,
		CreatedAt:  now,
		LastActive: now,
	}, nil
}

func (s *SQLiteStore) GetUserByID(id string) (*User, error) {
	var user User
	err := s.db.QueryRow(
		"SELECT id, email, name, avatar, is_guest, guest_name, created_at, last_active FROM users WHERE id = ?",
		id,
	).Scan(&user.ID, &user.Email, &user.Name, &user.Avatar, &user.IsGuest, &user.GuestName, &user.CreatedAt, &user.LastActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) TouchUserLastActive(id string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec("UPDATE users SET last_active = ?, updated_at = ? WHERE id = ?", now, now, id)
	if err != nil {
		return fmt.Errorf("failed to update last_active: %w", err)
	}
	return nil
}

// Guest session methods

func (s *SQLiteStore) CreateGuestSession(guestName, userID, token string) (*GuestSession, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(sessionTTL)
	_, err := s.db.Exec(
		"INSERT INTO guest_sessions (token, guest_name, user_id, created_at, expires_at) VALUES (?, ?, ?, ?, ?)",
		token, guestName, userID, now, expiresAt,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, fmt.Errorf("session for user %s already exists: %w", userID, ErrConflict)
		}
		return nil, fmt.Errorf("failed to insert guest session: %w", err)
	}
	return &GuestSession{
		Token:     token,
		GuestName: guestName,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}, nil
}

// CreateGuestUser inserts a guest's user row and session row as one unit;
// neither survives if the other fails.
func (s *SQLiteStore) CreateGuestUser(userID, guestName, token string) (*User, *GuestSession, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(sessionTTL)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO users (id, name, is_guest, guest_name, created_at, last_active, updated_at) VALUES (?, ?, TRUE, ?, ?, ?, ?)",
		userID, guestName, guestName, now, now, now,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, nil, fmt.Errorf("user %s already exists: %w", userID, ErrConflict)
		}
		return nil, nil, fmt.Errorf("failed to insert user: %w", err)
	}

	_, err = tx.Exec(
		"INSERT INTO guest_sessions (token, guest_name, user_id, created_at, expires_at) VALUES (?, ?, ?, ?, ?)",
		token, guestName, userID, now, expiresAt,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, nil, fmt.Errorf("session for user %s already exists: %w", userID, ErrConflict)
		}
		return nil, nil, fmt.Errorf("failed to insert guest session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit guest user: %w", err)
	}

	name := guestName
	user := &User{
		ID:         userID,
		Name:       guestName,
		IsGuest:    true,
		GuestName:  &name,
		CreatedAt:  now,
		LastActive: now,
	}
	session := &GuestSession{
		Token:     token,
		GuestName: guestName,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	return user, session, nil
}

// GetSessionByToken resolves a live session. Expired and unknown tokens are
// both reported as absence; callers cannot distinguish the two.
func (s *SQLiteStore) GetSessionByToken(token string) (*GuestSession, error) {
	var session GuestSession
	err := s.db.QueryRow(
		"SELECT token, guest_name, user_id, created_at, expires_at FROM guest_sessions WHERE token = ?",
		token,
	).Scan(&session.Token, &session.GuestName, &session.UserID, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Session not found
		}
		return nil, fmt.Errorf("failed to query guest session: %w", err)
	}
	if !session.ExpiresAt.After(time.Now().UTC()) {
		return nil, nil // Expired sessions look exactly like missing ones
	}
	return &session, nil
}

// Conversation methods

// canonicalParticipants sorts a copy of the ids and joins them, so set
// equality between participant lists becomes string equality.
func canonicalParticipants(participantIDs []string) string {
	ids := make([]string, len(participantIDs))
	copy(ids, participantIDs)
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func splitParticipants(canonical string) []string {
	return strings.Split(canonical, ",")
}

// GetOrCreateConversation finds the conversation for the given participant
// set, creating it if absent. The participants column is UNIQUE on the
// canonical form, so two racing creators cannot both insert; the loser
// re-reads the winner's row.
func (s *SQLiteStore) GetOrCreateConversation(participantIDs []string) (*Conversation, error) {
	canonical := canonicalParticipants(participantIDs)

	conv, err := s.getConversationByParticipants(canonical)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = s.db.Exec(
		"INSERT INTO conversations (id, participants, last_message_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		id, canonical, now, now, now,
	)
	if err != nil {
		if isConstraintViolation(err) {
			// Lost the race to a concurrent creator; their row is the answer.
			return s.getConversationByParticipants(canonical)
		}
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}

	return &Conversation{
		ID:            id,
		Participants:  splitParticipants(canonical),
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (s *SQLiteStore) getConversationByParticipants(canonical string) (*Conversation, error) {
	var conv Conversation
	var participants string
	err := s.db.QueryRow(
		"SELECT id, participants, last_message_at, created_at, updated_at FROM conversations WHERE participants = ?",
		canonical,
	).Scan(&conv.ID, &participants, &conv.LastMessageAt, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	conv.Participants = splitParticipants(participants)
	return &conv, nil
}

func (s *SQLiteStore) GetConversationByID(id string) (*Conversation, error) {
	var conv Conversation
	var participants string
	err := s.db.QueryRow(
		"SELECT id, participants, last_message_at, created_at, updated_at FROM conversations WHERE id = ?",
		id,
	).Scan(&conv.ID, &participants, &conv.LastMessageAt, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	conv.Participants = splitParticipants(participants)
	return &conv, nil
}

// GetUserConversations returns every conversation the user participates in,
// most recently active first, each annotated with its latest message.
func (s *SQLiteStore) GetUserConversations(userID string) ([]Conversation, error) {
	rows, err := s.db.Query(
		"SELECT id, participants, last_message_at, created_at, updated_at FROM conversations WHERE ',' || participants || ',' LIKE '%,' || ? || ',%' ORDER BY last_message_at DESC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var conv Conversation
		var participants string
		if err := rows.Scan(&conv.ID, &participants, &conv.LastMessageAt, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		conv.Participants = splitParticipants(participants)
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation rows: %w", err)
	}

	for i := range conversations {
		last, err := s.getLatestMessage(conversations[i].ID)
		if err != nil {
			return nil, err
		}
		conversations[i].LastMessage = last
	}
	return conversations, nil
}

// Message methods

// CreateMessage appends a message and advances the parent conversation's
// last_message_at in the same transaction, so readers never observe one
// without the other.
func (s *SQLiteStore) CreateMessage(msg *Message) error {
	msg.ID = uuid.NewString()
	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	if msg.ReadBy == nil {
		msg.ReadBy = []string{}
	}
	readBy, err := json.Marshal(msg.ReadBy)
	if err != nil {
		return fmt.Errorf("failed to marshal read_by: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO messages (id, conversation_id, sender_id, content, image_url, image_alt, type, read_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.ImageURL, msg.ImageAlt, msg.Type, string(readBy), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	res, err := tx.Exec(
		"UPDATE conversations SET last_message_at = ?, updated_at = ? WHERE id = ?",
		now, now, msg.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation timestamp: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("conversation %s: %w", msg.ConversationID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

// GetConversationMessages pages from the most recent message backwards, then
// reverses the page so callers receive it in chronological order. Paginating
// oldest-first would hand back the start of the history instead of the most
// recent page.
func (s *SQLiteStore) GetConversationMessages(conversationID string, limit, offset int) ([]Message, error) {
	rows, err := s.db.Query(
		"SELECT id, conversation_id, sender_id, content, image_url, image_alt, type, read_by, created_at, updated_at FROM messages WHERE conversation_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?",
		conversationID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *SQLiteStore) getLatestMessage(conversationID string) (*Message, error) {
	row := s.db.QueryRow(
		"SELECT id, conversation_id, sender_id, content, image_url, image_alt, type, read_by, created_at, updated_at FROM messages WHERE conversation_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1",
		conversationID,
	)
	msg, err := scanMessage(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Conversation has no messages yet
		}
		return nil, err
	}
	return msg, nil
}

func scanMessage(scan func(dest ...any) error) (*Message, error) {
	var msg Message
	var readBy string
	err := scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.ImageURL, &msg.ImageAlt, &msg.Type, &readBy, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan message row: %w", err)
	}
	if err := json.Unmarshal([]byte(readBy), &msg.ReadBy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal read_by: %w", err)
	}
	return &msg, nil
}

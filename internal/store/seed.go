package store

import (
	"fmt"
	"log"
)

// Seed inserts two guest users and a short conversation between them.
// Development convenience only; existing rows are left alone.
func (s *SQLiteStore) Seed() error {
	const (
		userID1        = "550e8400-e29b-41d4-a716-446655440000"
		userID2        = "550e8400-e29b-41d4-a716-446655440001"
		conversationID = "550e8400-e29b-41d4-a716-446655550000"
	)

	john := "John"
	jane := "Jane"
	if _, err := s.CreateUser(userID1, john, nil, true, &john); err != nil {
		log.Printf("Seed: user %s not created (may already exist): %v", userID1, err)
	}
	if _, err := s.CreateUser(userID2, jane, nil, true, &jane); err != nil {
		log.Printf("Seed: user %s not created (may already exist): %v", userID2, err)
	}

	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO conversations (id, participants) VALUES (?, ?)",
		conversationID, canonicalParticipants([]string{userID1, userID2}),
	)
	if err != nil {
		return fmt.Errorf("failed to seed conversation: %w", err)
	}

	samples := []struct {
		sender, content string
	}{
		{userID1, "Hey Jane! How are you?"},
		{userID2, "Hi John! I'm doing great!"},
		{userID1, "That's awesome! Want to chat?"},
	}
	for _, sample := range samples {
		msg := Message{
			ConversationID: conversationID,
			SenderID:       sample.sender,
			Content:        sample.content,
			Type:           MessageTypeText,
		}
		if err := s.CreateMessage(&msg); err != nil {
			return fmt.Errorf("failed to seed message: %w", err)
		}
	}

	log.Printf("Seeded %d users, 1 conversation, %d messages", 2, len(samples))
	return nil
}

// Reset drops every table. All data is lost; the schema is recreated so the
// store remains usable afterwards.
func (s *SQLiteStore) Reset() error {
	for _, table := range []string{"guest_sessions", "calls", "messages", "conversations", "users"} {
		if _, err := s.db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	return s.initSchema()
}

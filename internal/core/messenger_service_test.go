package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whispr-im/whispr/internal/auth"
	"github.com/whispr-im/whispr/internal/store"
)

func newTestService(t *testing.T) *MessengerService {
	t.Helper()
	dbStore, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbStore.Close() })
	return NewMessengerService(dbStore)
}

func registerGuest(t *testing.T, svc *MessengerService, name string) (*store.User, *store.GuestSession) {
	t.Helper()
	user, session, err := svc.RegisterGuest(name)
	require.NoError(t, err)
	return user, session
}

func TestRegisterGuest(t *testing.T) {
	svc := newTestService(t)

	user, session := registerGuest(t, svc, "Ana")
	assert.True(t, user.IsGuest)
	assert.Equal(t, "Ana", user.Name)
	require.NotNil(t, user.GuestName)
	assert.Equal(t, "Ana", *user.GuestName)
	assert.Equal(t, user.ID, session.UserID)
	assert.True(t, auth.IsValidToken(session.Token))
}

func TestRegisterGuestRejectsEmptyName(t *testing.T) {
	svc := newTestService(t)

	for _, name := range []string{"", "   ", "\t\n"} {
		_, _, err := svc.RegisterGuest(name)
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve, "name %q must be rejected", name)
	}
}

func TestAuthenticateToken(t *testing.T) {
	svc := newTestService(t)
	user, session := registerGuest(t, svc, "Ana")

	gotUser, gotSession, err := svc.AuthenticateToken(session.Token)
	require.NoError(t, err)
	require.NotNil(t, gotUser)
	assert.Equal(t, user.ID, gotUser.ID)
	assert.Equal(t, session.Token, gotSession.Token)

	// Malformed tokens never reach the store.
	gotUser, _, err = svc.AuthenticateToken("not-a-token")
	require.NoError(t, err)
	assert.Nil(t, gotUser)

	// Well-formed but unknown tokens are equally anonymous.
	gotUser, _, err = svc.AuthenticateToken(strings.Repeat("ef", 32))
	require.NoError(t, err)
	assert.Nil(t, gotUser)
}

func TestStartConversation(t *testing.T) {
	svc := newTestService(t)
	userA, _ := registerGuest(t, svc, "Ana")
	userB, _ := registerGuest(t, svc, "Ben")

	conv, err := svc.StartConversation([]string{userA.ID, userB.ID})
	require.NoError(t, err)

	// Repeat with reversed order lands on the same conversation.
	again, err := svc.StartConversation([]string{userB.ID, userA.ID})
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
}

func TestStartConversationValidation(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		name         string
		participants []string
	}{
		{name: "no participants", participants: nil},
		{name: "single participant", participants: []string{"user-a"}},
		{name: "blank participant id", participants: []string{"user-a", " "}},
		{name: "comma in participant id", participants: []string{"a,b", "user-c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StartConversation(tt.participants)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

// A participant id carrying a comma could alias another set's canonical key
// ({"a,b","c"} vs {"a","b","c"}) and leak conversations to non-members. Such
// ids must never reach the store.
func TestStartConversationRejectsKeyAliasing(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.StartConversation([]string{"a,b", "c"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	conv, err := svc.StartConversation([]string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, conv.Participants)

	// User b's listing contains only the legitimate conversation.
	conversations, err := svc.ListConversations("b")
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, conv.ID, conversations[0].ID)
}

func TestSendMessageValidation(t *testing.T) {
	svc := newTestService(t)
	userA, _ := registerGuest(t, svc, "Ana")
	userB, _ := registerGuest(t, svc, "Ben")
	conv, err := svc.StartConversation([]string{userA.ID, userB.ID})
	require.NoError(t, err)

	url := "/uploads/img-1-pic.png"
	tests := []struct {
		name     string
		content  string
		msgType  string
		imageURL *string
	}{
		{name: "empty text content", content: "  ", msgType: "text"},
		{name: "empty content with default type", content: ""},
		{name: "text with image url", content: "hi", msgType: "text", imageURL: &url},
		{name: "image without url", content: "caption", msgType: "image"},
		{name: "unknown type", content: "hi", msgType: "video"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SendMessage(conv.ID, userA.ID, tt.content, tt.msgType, tt.imageURL, nil)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestSendMessageVariants(t *testing.T) {
	svc := newTestService(t)
	userA, _ := registerGuest(t, svc, "Ana")
	userB, _ := registerGuest(t, svc, "Ben")
	conv, err := svc.StartConversation([]string{userA.ID, userB.ID})
	require.NoError(t, err)

	// Type defaults to text.
	text, err := svc.SendMessage(conv.ID, userA.ID, "hello", "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, store.MessageTypeText, text.Type)
	assert.Equal(t, userA.ID, text.SenderID)

	url := "/uploads/img-1-pic.png"
	alt := "a picture"
	image, err := svc.SendMessage(conv.ID, userB.ID, "", store.MessageTypeImage, &url, &alt)
	require.NoError(t, err)
	assert.Equal(t, store.MessageTypeImage, image.Type)
	require.NotNil(t, image.ImageURL)
	assert.Equal(t, url, *image.ImageURL)

	messages, err := svc.GetMessages(conv.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2, "limit defaults when unset")
	assert.Equal(t, text.ID, messages[0].ID)
	assert.Equal(t, image.ID, messages[1].ID)
}

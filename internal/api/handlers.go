package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/whispr-im/whispr/internal/core"
	"github.com/whispr-im/whispr/internal/store"
)

const defaultMaxUploadBytes = 5 * 1024 * 1024

type APIHandler struct {
	messenger      *core.MessengerService
	maxUploadBytes int64
}

func NewAPIHandler(ms *core.MessengerService, maxUploadBytes int64) *APIHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &APIHandler{messenger: ms, maxUploadBytes: maxUploadBytes}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// All failures use the same {"error": string} shape; no retry metadata.
func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// BearerAuthMiddleware resolves the bearer token to a session and stashes the
// session's user in the request context. The acting user id is always derived
// here; a client-supplied identity header is never trusted.
func (h *APIHandler) BearerAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			respondError(w, http.StatusUnauthorized, "Missing or invalid authorization header")
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		user, session, err := h.messenger.AuthenticateToken(token)
		if err != nil {
			log.Printf("Error in BearerAuthMiddleware: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to validate session")
			return
		}
		if user == nil {
			respondError(w, http.StatusUnauthorized, "Invalid or expired session")
			return
		}

		ctx := context.WithValue(r.Context(), "userID", user.ID)
		ctx = context.WithValue(ctx, "user", user)
		ctx = context.WithValue(ctx, "session", session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type GuestLoginRequest struct {
	GuestName string `json:"guestName"`
}

func (h *APIHandler) GuestLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req GuestLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	user, session, err := h.messenger.RegisterGuest(req.GuestName)
	if err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			respondError(w, http.StatusBadRequest, "Invalid guest name")
			return
		}
		log.Printf("Error creating guest account: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to create guest account")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"token":     session.Token,
		"userId":    user.ID,
		"guestName": session.GuestName,
	})
}

func (h *APIHandler) SessionHandler(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value("user").(*store.User)
	session := r.Context().Value("session").(*store.GuestSession)

	respondJSON(w, http.StatusOK, map[string]any{
		"user":    user,
		"session": session,
	})
}

func (h *APIHandler) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	user, err := h.messenger.GetUser(userID)
	if err != nil {
		log.Printf("Error fetching user %s: %v", userID, err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch user")
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)

	conversations, err := h.messenger.ListConversations(userID)
	if err != nil {
		log.Printf("Error listing conversations for user %s: %v", userID, err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch conversations")
		return
	}
	if conversations == nil {
		conversations = []store.Conversation{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

type CreateConversationRequest struct {
	ParticipantIDs []string `json:"participantIds"`
}

func (h *APIHandler) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	conversation, err := h.messenger.StartConversation(req.ParticipantIDs)
	if err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			respondError(w, http.StatusBadRequest, "Invalid participant IDs")
			return
		}
		log.Printf("Error creating conversation: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to create conversation")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"conversation": conversation})
}

func (h *APIHandler) GetMessagesHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	messages, err := h.messenger.GetMessages(conversationID, limit, offset)
	if err != nil {
		log.Printf("Error fetching messages for conversation %s: %v", conversationID, err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type PostMessageRequest struct {
	Content  string  `json:"content"`
	Type     string  `json:"type"`
	ImageURL *string `json:"imageUrl,omitempty"`
	ImageAlt *string `json:"imageAlt,omitempty"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)
	conversationID := chi.URLParam(r, "conversationID")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	message, err := h.messenger.SendMessage(conversationID, userID, req.Content, req.Type, req.ImageURL, req.ImageAlt)
	if err != nil {
		var ve *core.ValidationError
		switch {
		case errors.As(err, &ve):
			respondError(w, http.StatusBadRequest, "Invalid message content")
		case errors.Is(err, store.ErrNotFound):
			respondError(w, http.StatusNotFound, "Conversation not found")
		default:
			log.Printf("Error sending message in conversation %s: %v", conversationID, err)
			respondError(w, http.StatusInternalServerError, "Failed to send message")
		}
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"message": message})
}

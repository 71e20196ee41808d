package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MobasirSarkar/chatrelay/internal/chat"
)

const maxBodyBytes = chat.MaxFrameBytes

type errorResponse struct {
	Error string `json:"error"`
}

// handleHistory serves GET /api/history?selfId=&peerId=. Missing ids are not
// an error: the conversation is simply empty.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	self := firstNonEmpty(q.Get("selfId"), q.Get("senderId"))
	peer := firstNonEmpty(q.Get("peerId"), q.Get("receiverId"))
	if self == "" || peer == "" {
		s.log.Debug("history without both ids", "self", self, "peer", peer)
	}

	messages, err := s.store.ListConversation(r.Context(), self, peer)
	if err != nil {
		s.log.Error("failed to fetch messages", "self", self, "peer", peer, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to fetch messages"})
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// handlePostMessage serves POST /api/messages.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var draft chat.Draft
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&draft); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	msg, err := s.store.Append(r.Context(), draft)
	switch {
	case errors.Is(err, chat.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case err != nil:
		s.log.Error("failed to send message", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to send message"})
		return
	}
	s.log.Debug("message stored", "id", msg.ID, "sender", msg.SenderID, "receiver", msg.ReceiverID)
	writeJSON(w, http.StatusCreated, msg)
}

// handleListUsers serves GET /api/users.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.log.Error("failed to fetch users", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to fetch users"})
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// handleUpsertUser serves PUT /api/users.
func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	var u chat.User
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&u); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	err := s.store.UpsertUser(r.Context(), u)
	switch {
	case errors.Is(err, chat.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case err != nil:
		s.log.Error("failed to sync user", "user", u.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to sync user"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/npezzotti/go-rumble/internal/server"
	"github.com/npezzotti/go-rumble/internal/types"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Handle   string `json:"handle"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type PostMessageRequest struct {
	Message *string `json:"message"`
}

type LoginResponse struct {
	UserAuth string `json:"user_auth"`
}

type ResultResponse struct {
	Result any `json:"result"`
}

func (s *RumbleApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *RumbleApp) writeError(w http.ResponseWriter, err error) {
	errResp := NewChatError(err)
	if errResp.StatusCode == http.StatusInternalServerError {
		s.log.Printf("request failed: %v", err)
	}

	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *RumbleApp) writeOk(w http.ResponseWriter, result any) {
	s.writeJson(w, http.StatusOK, ResultResponse{Result: result})
}

func (s *RumbleApp) token(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, ok := Token(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
	}

	return token, ok
}

func (s *RumbleApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.cs.Ping(); err != nil {
		s.log.Printf("health check failed: %v", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *RumbleApp) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" || req.Password == "" || req.Handle == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.cs.Register(req.Username, req.Password, req.Handle); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeOk(w, "OK")
}

func (s *RumbleApp) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	token, err := s.cs.Login(req.Username, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, LoginResponse{UserAuth: token})
}

func (s *RumbleApp) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := s.token(w, r)
	if !ok {
		return
	}

	if err := s.cs.Logout(token); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeOk(w, "OK")
}

func (s *RumbleApp) users(w http.ResponseWriter, r *http.Request) {
	token, ok := s.token(w, r)
	if !ok {
		return
	}

	handles, err := s.cs.Users(token)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeOk(w, handles)
}

func (s *RumbleApp) createRoom(w http.ResponseWriter, r *http.Request) {
	token, ok := s.token(w, r)
	if !ok {
		return
	}

	if err := s.cs.CreateRoom(token, r.PathValue("name")); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeOk(w, "OK")
}

func (s *RumbleApp) destroyRoom(w http.ResponseWriter, r *http.Request) {
	token, ok := s.token(w, r)
	if !ok {
		return
	}

	if err := s.cs.DestroyRoom(token, r.PathValue("name")); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeOk(w, "OK")
}

func (s *RumbleApp) rooms(w http.ResponseWriter, r *http.Request) {
	token, ok := s.token(w, r)
	if !ok {
		return
	}

	names, err := s.cs.Rooms(token)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeOk(w, names)
}

func (s *RumbleApp) joinRoom(w http.ResponseWriter, r *http.Request) {
	token, ok := s.token(w, r)
	if !ok {
		return
	}

	if err := s.cs.JoinRoom(token, r.PathValue("name")); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeOk(w, "OK")
}

func (s *RumbleApp) leaveRoom(w http.ResponseWriter, r *http.Request) {
	token, ok := s.token(w, r)
	if !ok {
		return
	}

	if err := s.cs.LeaveRoom(token, r.PathValue("name")); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeOk(w, "OK")
}

func (s *RumbleApp) roomMembers(w http.ResponseWriter, r *http.Request) {
	token, ok := s.token(w, r)
	if !ok {
		return
	}

	handles, err := s.cs.Members(token, r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeOk(w, handles)
}

func (s *RumbleApp) postMessage(w http.ResponseWriter, r *http.Request) {
	token, ok := s.token(w, r)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cs.PostMessage(token, r.PathValue("name"), *req.Message); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeOk(w, "OK")
}

func (s *RumbleApp) getMessages(w http.ResponseWriter, r *http.Request) {
	token, ok := s.token(w, r)
	if !ok {
		return
	}

	msgs, err := s.cs.Messages(token, r.PathValue("name"), r.PathValue("start"), r.PathValue("end"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeOk(w, messageTriples(msgs))
}

// messageTriples renders messages as [timestamp, handle, text] arrays.
func messageTriples(msgs []types.Message) [][3]string {
	out := make([][3]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, [3]string{m.Timestamp.Format(server.TimestampLayout), m.Handle, m.Text})
	}

	return out
}

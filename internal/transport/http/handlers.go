package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/julienschmidt/httprouter"
	qrcode "github.com/skip2/go-qrcode"

	"storychain/internal/app"
	"storychain/internal/domain"
)

// qrSize is the invite QR edge length in pixels
const qrSize = 320

// Response is a standard API response
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GetRoomResponse is the response for getting room info
type GetRoomResponse struct {
	RoomCode    string                   `json:"roomCode"`
	Status      string                   `json:"status"`
	Round       int                      `json:"round"`
	PlayerCount int                      `json:"playerCount"`
	Players     []domain.ParticipantInfo `json:"players"`
	CanJoin     bool                     `json:"canJoin"`
	InviteLink  string                   `json:"inviteLink"`
	CreatedAt   time.Time                `json:"createdAt"`
}

// HealthResponse is the response for health check
type HealthResponse struct {
	Status string `json:"status"`
}

// StatsResponse is the response for stats endpoint
type StatsResponse struct {
	ActiveRooms  int `json:"activeRooms"`
	TotalPlayers int `json:"totalPlayers"`
}

// handleGetRoom handles GET /api/rooms/:code
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	session, ok := s.lookupRoom(w, ps)
	if !ok {
		return
	}

	s.sendSuccess(w, &GetRoomResponse{
		RoomCode:    session.GetRoomCode(),
		Status:      session.GetStatus().String(),
		Round:       session.GetRound(),
		PlayerCount: session.GetPlayerCount(),
		Players:     session.GetMembers(),
		CanJoin:     session.CanJoin(),
		InviteLink:  s.inviteLink(r, session.GetRoomCode()),
		CreatedAt:   session.GetCreatedAt(),
	})
}

// handleRoomQR handles GET /api/rooms/:code/qr with a PNG of the invite link
func (s *Server) handleRoomQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	session, ok := s.lookupRoom(w, ps)
	if !ok {
		return
	}

	png, err := qrcode.Encode(s.inviteLink(r, session.GetRoomCode()), qrcode.Medium, qrSize)
	if err != nil {
		s.logger.Error("qr generation failed", "roomCode", session.GetRoomCode(), "error", err)
		s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "QR generation failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// handleTranscript handles GET /api/rooms/:code/transcript once the game is over
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	session, ok := s.lookupRoom(w, ps)
	if !ok {
		return
	}

	results := session.GetResults()
	if results == nil {
		s.sendError(w, http.StatusConflict, "GAME_NOT_FINISHED", "Stories are revealed when the game ends")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(domain.Transcript(results)))
}

// handleHealth handles GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.sendSuccess(w, &HealthResponse{
		Status: "ok",
	})
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.sendSuccess(w, &StatsResponse{
		ActiveRooms:  s.hub.GetSessionCount(),
		TotalPlayers: s.hub.GetTotalPlayerCount(),
	})
}

// handleVersion handles GET /version
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("storychain v" + s.version + "\n"))
}

// lookupRoom resolves the :code parameter, writing the error response itself
func (s *Server) lookupRoom(w http.ResponseWriter, ps httprouter.Params) (*app.RoomSession, bool) {
	session, err := s.hub.GetSession(ps.ByName("code"))
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			s.sendError(w, http.StatusNotFound, "ROOM_NOT_FOUND", "Room not found")
		} else {
			s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		}
		return nil, false
	}
	return session, true
}

// inviteLink builds the websocket URL a client dials to join code
func (s *Server) inviteLink(r *http.Request, code string) string {
	scheme := "ws"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "wss"
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     s.config.BasePath() + "/ws",
		RawQuery: url.Values{"room": {code}}.Encode(),
	}
	return u.String()
}

// sendSuccess sends a successful JSON response
func (s *Server) sendSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&Response{
		Success: true,
		Data:    data,
	})
}

// sendError sends an error JSON response
func (s *Server) sendError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	})
}

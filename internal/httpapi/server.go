package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"prestige/internal/app/rate"
	"prestige/internal/musicapi"
	"prestige/internal/rank"
	"prestige/internal/store"
)

// UserService captures the account operations needed by the HTTP handlers.
type UserService interface {
	Signup(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (store.Session, error)
	Logout(ctx context.Context, token string) (int64, error)
}

// RateService drives the comparison-based rating workflows.
type RateService interface {
	Categories(ctx context.Context, itemType string) ([]rank.Category, error)
	Ratings(ctx context.Context, token, itemType string) ([]rate.RatedItem, error)
	AlbumRanking(ctx context.Context, token, albumID string) ([]rate.RatedItem, error)
	StartRating(ctx context.Context, token, itemType, itemID string) (*rate.FlowStatus, error)
	ChooseCategory(ctx context.Context, token, categoryID string) (*rate.FlowStatus, error)
	RecordWinner(ctx context.Context, token, winner string) (*rate.FlowStatus, error)
	Status(ctx context.Context, token string) (*rate.FlowStatus, error)
	Finalize(ctx context.Context, token string) (*rate.Result, error)
	Cancel(ctx context.Context, token string) error
	DeleteRating(ctx context.Context, token, itemType, itemID string) error
	EndSession(userID int64)
}

// Server wires HTTP handlers to the underlying services.
type Server struct {
	users UserService
	rate  RateService
}

// New configures a Server over the given services.
func New(users UserService, rate RateService) *Server {
	return &Server{users: users, rate: rate}
}

// Routes exposes the HTTP handlers for accounts and ratings.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Auth routes
	mux.HandleFunc("POST /api/v1/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/logout", s.handleLogout)

	// Category configuration
	mux.HandleFunc("GET /api/v1/categories", s.handleCategories)

	// Rated library routes
	mux.HandleFunc("GET /api/v1/me/ratings", s.handleRatings)
	mux.HandleFunc("DELETE /api/v1/me/ratings/{type}/{id}", s.handleDeleteRating)
	mux.HandleFunc("GET /api/v1/me/albums/{id}/ranking", s.handleAlbumRanking)

	// Rating flow routes
	mux.HandleFunc("POST /api/v1/me/rate", s.handleStartRate)
	mux.HandleFunc("GET /api/v1/me/rate", s.handleRateStatus)
	mux.HandleFunc("POST /api/v1/me/rate/category", s.handleChooseCategory)
	mux.HandleFunc("POST /api/v1/me/rate/choice", s.handleRecordChoice)
	mux.HandleFunc("POST /api/v1/me/rate/save", s.handleSaveRating)
	mux.HandleFunc("POST /api/v1/me/rate/cancel", s.handleCancelRating)

	return mux
}

type signupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	if err := s.users.Signup(r.Context(), req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, store.ErrUserExists):
			writeJSON(w, http.StatusConflict, errorResponse{Error: "username already taken"})
		default:
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	session, err := s.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, store.ErrInvalidCredentials) {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: session.Token, ExpiresAt: session.ExpiresAt})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	userID, err := s.users.Logout(r.Context(), token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.rate.EndSession(userID)

	w.WriteHeader(http.StatusNoContent)
}

func extractToken(r *http.Request) string {
	return parseBearerToken(r.Header.Get("Authorization"))
}

func parseBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// writeServiceError maps the service error taxonomy onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrUnauthorized), errors.Is(err, store.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, rank.ErrInvalidItemType),
		errors.Is(err, rank.ErrInvalidWinner),
		errors.Is(err, rank.ErrInvalidPosition):
		status = http.StatusBadRequest
	case errors.Is(err, rank.ErrNotRated),
		errors.Is(err, musicapi.ErrItemNotFound),
		errors.Is(err, rate.ErrNoFlow):
		status = http.StatusNotFound
	case errors.Is(err, rate.ErrFlowActive),
		errors.Is(err, rank.ErrFlowState),
		errors.Is(err, rank.ErrAlreadyRated),
		errors.Is(err, store.ErrUserExists):
		status = http.StatusConflict
	case errors.Is(err, rank.ErrUnknownCategory):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, rate.ErrMetadataUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, rate.ErrSaveFailed),
		errors.Is(err, musicapi.ErrNoProvider),
		errors.Is(err, rank.ErrRatingsUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

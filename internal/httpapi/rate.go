package httpapi

import (
	"encoding/json"
	"net/http"
)

type startRateRequest struct {
	ItemType string `json:"type"`
	ItemID   string `json:"itemId"`
}

type categoryRequest struct {
	CategoryID string `json:"categoryId"`
}

type choiceRequest struct {
	Winner string `json:"winner"`
}

// handleStartRate opens a rating flow for one item.
func (s *Server) handleStartRate(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	var req startRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	status, err := s.rate.StartRating(r.Context(), token, req.ItemType, req.ItemID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, status)
}

// handleRateStatus reports the active flow.
func (s *Server) handleRateStatus(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	status, err := s.rate.Status(r.Context(), token)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleChooseCategory fixes the band for the active flow.
func (s *Server) handleChooseCategory(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	status, err := s.rate.ChooseCategory(r.Context(), token, req.CategoryID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleRecordChoice applies one comparison outcome to the active flow.
func (s *Server) handleRecordChoice(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	var req choiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	status, err := s.rate.RecordWinner(r.Context(), token, req.Winner)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleSaveRating persists the converged placement and finishes the flow.
func (s *Server) handleSaveRating(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	result, err := s.rate.Finalize(r.Context(), token)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleCancelRating abandons the active flow.
func (s *Server) handleCancelRating(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	if err := s.rate.Cancel(r.Context(), token); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

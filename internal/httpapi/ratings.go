package httpapi

import (
	"net/http"

	"prestige/internal/app/rate"
	"prestige/internal/rank"
)

// handleCategories lists the configured category bands. The catalog is shared
// configuration, so no token is required.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.rate.Categories(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Categories []rank.Category `json:"categories"`
	}{Categories: categories})
}

// handleRatings lists the caller's ranked items of one type.
func (s *Server) handleRatings(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	items, err := s.rate.Ratings(r.Context(), token, r.URL.Query().Get("type"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Ratings []rate.RatedItem `json:"ratings"`
	}{Ratings: items})
}

// handleDeleteRating removes one rated item from the caller's rankings.
func (s *Server) handleDeleteRating(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	if err := s.rate.DeleteRating(r.Context(), token, r.PathValue("type"), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleAlbumRanking lists the caller's rated tracks of one album, best first.
func (s *Server) handleAlbumRanking(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	items, err := s.rate.AlbumRanking(r.Context(), token, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Ranking []rate.RatedItem `json:"ranking"`
	}{Ranking: items})
}

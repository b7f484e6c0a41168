package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/reoanrudo/air-guitar-05/store"
)

// registerAPI mounts the score/history endpoints the app reports to after a
// play session ends.
func registerAPI(mux *http.ServeMux, db *store.Store) {
	mux.HandleFunc("POST /api/scores", submitScoreHandler(db))
	mux.HandleFunc("POST /api/history", submitHistoryHandler(db))
	mux.HandleFunc("GET /api/leaderboard", leaderboardHandler(db))
	mux.HandleFunc("GET /api/history/{playerID}", playerHistoryHandler(db))
	mux.HandleFunc("GET /api/stats/{playerID}", playerStatsHandler(db))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

const maxPlayerIDLen = 50

func validPlayerID(id string) bool {
	return id != "" && len(id) <= maxPlayerIDLen
}

func submitScoreHandler(db *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sc store.Score
		if err := json.NewDecoder(r.Body).Decode(&sc); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if !validPlayerID(sc.PlayerID) || sc.Score < 0 || sc.MaxCombo < 0 ||
			sc.PerfectCount < 0 || sc.GreatCount < 0 || sc.MissCount < 0 {
			writeError(w, http.StatusUnprocessableEntity, "invalid score submission")
			return
		}
		saved, err := db.SaveScore(sc)
		if err != nil {
			slog.Error("save score failed", "playerId", sc.PlayerID, "error", err)
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

func submitHistoryHandler(db *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var h store.PlayHistory
		if err := json.NewDecoder(r.Body).Decode(&h); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if !validPlayerID(h.PlayerID) || h.Score < 0 || h.MaxCombo < 0 || h.DurationSeconds < 0 {
			writeError(w, http.StatusUnprocessableEntity, "invalid history submission")
			return
		}
		saved, err := db.SaveHistory(h)
		if err != nil {
			slog.Error("save history failed", "playerId", h.PlayerID, "error", err)
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

// limitParam parses ?limit=, clamped to 1..100.
func limitParam(r *http.Request, def int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	if n > 100 {
		return 100
	}
	return n
}

func leaderboardHandler(db *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := db.Leaderboard(limitParam(r, 10))
		if err != nil {
			slog.Error("leaderboard query failed", "error", err)
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func playerHistoryHandler(db *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := r.PathValue("playerID")
		if !validPlayerID(playerID) {
			writeError(w, http.StatusUnprocessableEntity, "invalid player id")
			return
		}
		histories, err := db.PlayerHistory(playerID, limitParam(r, 20))
		if err != nil {
			slog.Error("history query failed", "playerId", playerID, "error", err)
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		writeJSON(w, http.StatusOK, histories)
	}
}

func playerStatsHandler(db *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := r.PathValue("playerID")
		if !validPlayerID(playerID) {
			writeError(w, http.StatusUnprocessableEntity, "invalid player id")
			return
		}
		stats, err := db.PlayerStats(playerID)
		if err != nil {
			slog.Error("stats query failed", "playerId", playerID, "error", err)
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

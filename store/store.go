// Package store persists gameplay results (scores and play history) in
// SQLite, backing the /api endpoints the companion app reports to after a
// session.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type Score struct {
	ID           int64     `json:"id"`
	PlayerID     string    `json:"player_id"`
	Score        int       `json:"score"`
	MaxCombo     int       `json:"max_combo"`
	PerfectCount int       `json:"perfect_count"`
	GreatCount   int       `json:"great_count"`
	MissCount    int       `json:"miss_count"`
	PlayedAt     time.Time `json:"played_at"`
}

type PlayHistory struct {
	ID              int64     `json:"id"`
	PlayerID        string    `json:"player_id"`
	Score           int       `json:"score"`
	MaxCombo        int       `json:"max_combo"`
	DurationSeconds float64   `json:"duration_seconds"`
	PlayedAt        time.Time `json:"played_at"`
}

type LeaderboardEntry struct {
	Rank     int       `json:"rank"`
	PlayerID string    `json:"player_id"`
	Score    int       `json:"score"`
	MaxCombo int       `json:"max_combo"`
	PlayedAt time.Time `json:"played_at"`
}

type Stats struct {
	TotalPlays   int     `json:"total_plays"`
	TotalScore   int     `json:"total_score"`
	AverageScore float64 `json:"average_score"`
	BestScore    int     `json:"best_score"`
	BestCombo    int     `json:"best_combo"`
	PerfectRate  float64 `json:"perfect_rate"`
}

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scores (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		player_id TEXT NOT NULL,
		score INTEGER NOT NULL,
		max_combo INTEGER NOT NULL,
		perfect_count INTEGER NOT NULL DEFAULT 0,
		great_count INTEGER NOT NULL DEFAULT 0,
		miss_count INTEGER NOT NULL DEFAULT 0,
		played_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scores_player ON scores(player_id);
	CREATE TABLE IF NOT EXISTS play_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		player_id TEXT NOT NULL,
		score INTEGER NOT NULL,
		max_combo INTEGER NOT NULL,
		duration_seconds REAL NOT NULL,
		played_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_player ON play_history(player_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) SaveScore(sc Score) (Score, error) {
	sc.PlayedAt = time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO scores (player_id, score, max_combo, perfect_count, great_count, miss_count, played_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sc.PlayerID, sc.Score, sc.MaxCombo, sc.PerfectCount, sc.GreatCount, sc.MissCount, sc.PlayedAt,
	)
	if err != nil {
		return Score{}, fmt.Errorf("insert score: %w", err)
	}
	sc.ID, _ = res.LastInsertId()
	return sc, nil
}

func (s *Store) SaveHistory(h PlayHistory) (PlayHistory, error) {
	h.PlayedAt = time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO play_history (player_id, score, max_combo, duration_seconds, played_at)
		 VALUES (?, ?, ?, ?, ?)`,
		h.PlayerID, h.Score, h.MaxCombo, h.DurationSeconds, h.PlayedAt,
	)
	if err != nil {
		return PlayHistory{}, fmt.Errorf("insert history: %w", err)
	}
	h.ID, _ = res.LastInsertId()
	return h, nil
}

func (s *Store) Leaderboard(limit int) ([]LeaderboardEntry, error) {
	rows, err := s.db.Query(
		`SELECT player_id, score, max_combo, played_at FROM scores
		 ORDER BY score DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []LeaderboardEntry{}
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.PlayerID, &e.Score, &e.MaxCombo, &e.PlayedAt); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) PlayerHistory(playerID string, limit int) ([]PlayHistory, error) {
	rows, err := s.db.Query(
		`SELECT id, player_id, score, max_combo, duration_seconds, played_at
		 FROM play_history WHERE player_id = ?
		 ORDER BY played_at DESC LIMIT ?`, playerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	histories := []PlayHistory{}
	for rows.Next() {
		var h PlayHistory
		if err := rows.Scan(&h.ID, &h.PlayerID, &h.Score, &h.MaxCombo, &h.DurationSeconds, &h.PlayedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		histories = append(histories, h)
	}
	return histories, rows.Err()
}

// PlayerStats aggregates a player's results. A player with no scores gets
// the zero Stats, not an error, matching what the app expects.
func (s *Store) PlayerStats(playerID string) (Stats, error) {
	var st Stats
	var scoreCount, totalHits, perfectHits int

	err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(score), 0), COALESCE(MAX(score), 0), COALESCE(MAX(max_combo), 0),
		        COALESCE(SUM(perfect_count + great_count + miss_count), 0), COALESCE(SUM(perfect_count), 0)
		 FROM scores WHERE player_id = ?`, playerID,
	).Scan(&scoreCount, &st.TotalScore, &st.BestScore, &st.BestCombo, &totalHits, &perfectHits)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}

	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM play_history WHERE player_id = ?`, playerID,
	).Scan(&st.TotalPlays); err != nil {
		return Stats{}, fmt.Errorf("query play count: %w", err)
	}

	if scoreCount == 0 {
		return Stats{}, nil
	}
	st.AverageScore = round2(float64(st.TotalScore) / float64(scoreCount))
	if totalHits > 0 {
		st.PerfectRate = round2(float64(perfectHits) / float64(totalHits) * 100)
	}
	return st, nil
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

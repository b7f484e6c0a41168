package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/reoanrudo/air-guitar-05/domain"
	"github.com/reoanrudo/air-guitar-05/hub"
	"github.com/reoanrudo/air-guitar-05/protocol"
	"github.com/reoanrudo/air-guitar-05/store"
	ws "github.com/reoanrudo/air-guitar-05/websocket"
)

// portFallbackRange is how many consecutive ports to probe when the
// configured one is taken, before giving up.
const portFallbackRange = 4

var upgrader = gws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type config struct {
	port              int
	mode              hub.Mode
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	classifyGrace     time.Duration
	dbPath            string
}

func loadConfig() config {
	cfg := config{
		port:              8080,
		mode:              hub.ModeStrict,
		heartbeatInterval: 15 * time.Second,
		heartbeatTimeout:  30 * time.Second,
		classifyGrace:     30 * time.Second,
		dbPath:            "./air_guitar.db",
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.port = p
		}
	}
	if mode, ok := hub.ParseMode(os.Getenv("PAIRING_MODE")); ok {
		cfg.mode = mode
	} else {
		slog.Warn("unknown PAIRING_MODE, using strict", "value", os.Getenv("PAIRING_MODE"))
	}
	if d, err := time.ParseDuration(os.Getenv("HEARTBEAT_INTERVAL")); err == nil {
		cfg.heartbeatInterval = d
	}
	if d, err := time.ParseDuration(os.Getenv("HEARTBEAT_TIMEOUT")); err == nil {
		cfg.heartbeatTimeout = d
	}
	if d, err := time.ParseDuration(os.Getenv("CLASSIFY_GRACE")); err == nil {
		cfg.classifyGrace = d
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.dbPath = v
	}
	return cfg
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}
	setupLogger()

	cfg := loadConfig()

	registry := hub.New(cfg.mode)
	handler := protocol.NewHandler(registry, cfg.mode == hub.ModeStrict)

	db, err := store.Open(cfg.dbPath)
	if err != nil {
		slog.Error("database open failed", "path", cfg.dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(cfg, registry, handler))
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/stats", statsHandler(registry))
	registerAPI(mux, db)

	listener, port, err := listen(cfg.port)
	if err != nil {
		slog.Error("listener bind failed", "port", cfg.port,
			"probed", portFallbackRange, "error", err)
		os.Exit(1)
	}

	server := &http.Server{Handler: mux}
	go func() {
		slog.Info("server starting", "port", port, "mode", cfg.mode.String())
		if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// listen binds the configured port, probing a few successors when it is
// already taken. Anything else is fatal.
func listen(port int) (net.Listener, int, error) {
	var lastErr error
	for p := port; p <= port+portFallbackRange; p++ {
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", p))
		if err == nil {
			if p != port {
				slog.Warn("configured port taken, using fallback", "configured", port, "port", p)
			}
			return l, p, nil
		}
		lastErr = err
	}
	return nil, 0, lastErr
}

func setupLogger() {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

// wsHandler accepts a connection and classifies it as early as possible:
// explicit ?room=XXXX&type=mobile|display query parameters win; in broadcast
// mode a missing type falls back to user-agent sniffing; otherwise the
// connection waits for a register/HELLO envelope.
func wsHandler(cfg config, registry domain.Registry, handler domain.MessageHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("upgrade error", "error", err)
			return
		}

		room := protocol.NormalizeRoom(r.URL.Query().Get("room"))
		role, ok := domain.ParseRole(r.URL.Query().Get("type"))
		if !ok && cfg.mode == hub.ModeBroadcast {
			role = ws.InferRole(r.Header.Get("User-Agent"))
		}
		if cfg.mode == hub.ModeStrict && room == "" {
			// No usable room code yet; wait for the register/HELLO envelope
			// to carry one instead of sealing an empty room.
			role = domain.RoleUnclassified
		}

		wsConn := ws.NewConn(uuid.New().String(), conn, registry, handler, ws.Options{
			HeartbeatInterval: cfg.heartbeatInterval,
			HeartbeatTimeout:  cfg.heartbeatTimeout,
		})
		wsConn.Start(role, room, cfg.classifyGrace)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func statsHandler(registry domain.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, clients := registry.Stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"rooms": rooms, "clients": clients})
	}
}

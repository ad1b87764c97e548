// Package dashboard serves a read-only observability view of a running
// node: a JSON snapshot endpoint and a websocket that pushes the same
// snapshot on every tick. It is grounded on sonpython-slether/server/main.go's
// websocket-upgrade-plus-static-file-server shape, narrowed from a
// read-write game protocol to a read-only push feed — this node's actual
// game protocol runs over internal/transport's UDP wire, not HTTP.
package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"snakemesh/internal/field"
	"snakemesh/internal/roster"
)

// StatsPath and FeedPath are the two HTTP routes Serve registers.
const (
	StatsPath = "/stats"
	FeedPath  = "/feed"
)

// Snapshotter is the read seam into the running engine. *engine.Engine
// satisfies it without this package importing internal/engine, keeping the
// dependency direction observability -> engine rather than the reverse.
type Snapshotter interface {
	Snapshot() (roster.Snapshot, field.Snapshot)
}

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	ReadBufferSize:    1024,
	WriteBufferSize:   4096,
	EnableCompression: true,
}

// Stats is the JSON shape served at StatsPath and pushed over FeedPath.
type Stats struct {
	StateOrder uint64        `json:"state_order"`
	Players    []PlayerStats `json:"players"`
	FoodCount  int           `json:"food_count"`
	SnakeCount int           `json:"snake_count"`
}

// PlayerStats is one roster entry flattened for display.
type PlayerStats struct {
	ID    int32  `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Score uint32 `json:"score"`
}

func buildStats(src Snapshotter) Stats {
	rs, fs := src.Snapshot()
	players := make([]PlayerStats, 0, len(rs.Players))
	for _, p := range rs.Players {
		players = append(players, PlayerStats{ID: p.ID, Name: p.Name, Role: p.Role.String(), Score: p.Score})
	}
	return Stats{
		StateOrder: rs.StateOrder,
		Players:    players,
		FoodCount:  len(fs.Food),
		SnakeCount: len(fs.Snakes),
	}
}

// Server is the dashboard's HTTP server: one JSON snapshot endpoint and a
// set of subscribed websocket clients fed by a single push goroutine.
type Server struct {
	addr   string
	src    Snapshotter
	period time.Duration

	http *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewServer builds a dashboard bound to addr (e.g. ":8787"), reading from
// src and pushing a fresh Stats every period.
func NewServer(addr string, src Snapshotter, period time.Duration) *Server {
	s := &Server{
		addr:    addr,
		src:     src,
		period:  period,
		clients: make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(StatsPath, s.handleStats)
	mux.HandleFunc(FeedPath, s.handleFeed)
	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(buildStats(s.src)); err != nil {
		log.Printf("dashboard: encode stats: %v", err)
	}
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("dashboard: ws upgrade: %v", err)
		return
	}
	ws.EnableWriteCompression(true)

	s.mu.Lock()
	s.clients[ws] = struct{}{}
	s.mu.Unlock()
	log.Printf("dashboard: viewer connected from %s", r.RemoteAddr)

	// The feed is push-only; a blocking read just detects the peer going
	// away, same role ReadLoop plays for sonpython-slether's Conn.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				s.mu.Lock()
				delete(s.clients, ws)
				s.mu.Unlock()
				ws.Close()
				return
			}
		}
	}()
}

func (s *Server) broadcast(stats Stats) {
	data, err := json.Marshal(stats)
	if err != nil {
		log.Printf("dashboard: marshal stats: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ws := range s.clients {
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			delete(s.clients, ws)
			ws.Close()
		}
	}
}

// Serve runs the HTTP server and the push loop until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		ticker := time.NewTicker(s.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.broadcast(buildStats(s.src))
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.http.Close()
	}()

	log.Printf("dashboard: listening on %s", s.addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/decred/slog"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/vctt94/pongtourney/server/serverdb"
)

// Authenticator resolves a websocket upgrade request to a user
// identity. A returned error rejects the upgrade with 401.
type Authenticator interface {
	Authenticate(r *http.Request) (userID int64, username string, err error)
}

// AuthFunc adapts a function to the Authenticator interface.
type AuthFunc func(r *http.Request) (int64, string, error)

func (f AuthFunc) Authenticate(r *http.Request) (int64, string, error) {
	return f(r)
}

// QueryAuth trusts userId and username query parameters. Development
// only; production deployments sit behind a gateway that injects a
// verified identity.
func QueryAuth() Authenticator {
	return AuthFunc(func(r *http.Request) (int64, string, error) {
		userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
		if err != nil || userID <= 0 {
			return 0, "", errors.New("missing or invalid userId")
		}
		username := r.URL.Query().Get("username")
		if username == "" {
			username = fmt.Sprintf("user-%d", userID)
		}
		return userID, username, nil
	})
}

// ServerConfig carries everything a Server needs. DB and Log are
// required; the rest has working defaults.
type ServerConfig struct {
	ListenAddr string
	DB         serverdb.ServerDB
	Log        slog.Logger
	Auth       Authenticator
	TickHz     int
	MaxScore   int
}

// Server ties the hub, the router and both coordinators to an HTTP
// listener exposing the websocket endpoint.
type Server struct {
	cfg  ServerConfig
	log  slog.Logger
	db   serverdb.ServerDB
	auth Authenticator

	hub         *Hub
	router      *Router
	matches     *MatchCoordinator
	tournaments *TournamentCoordinator

	upgrader websocket.Upgrader
	httpSrv  *http.Server

	// ctx outlives any single request; handlers use it for storage
	// calls. Set by Run, background until then.
	ctx context.Context
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.DB == nil {
		return nil, errors.New("server config: DB is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}
	if cfg.Auth == nil {
		cfg.Auth = QueryAuth()
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	hub := NewHub(cfg.Log)
	matches := NewMatchCoordinator(cfg.DB, hub, cfg.Log, cfg.TickHz, cfg.MaxScore)
	tournaments := NewTournamentCoordinator(cfg.DB, hub, matches, cfg.Log)

	s := &Server{
		cfg:         cfg,
		log:         cfg.Log,
		db:          cfg.DB,
		auth:        cfg.Auth,
		hub:         hub,
		router:      newRouter(cfg.Log),
		matches:     matches,
		tournaments: tournaments,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is the gateway's job.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		ctx: context.Background(),
	}
	s.routes()
	return s, nil
}

// ServeWS authenticates and upgrades one websocket connection, then
// runs its read loop until the peer goes away.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, username, err := s.auth.Authenticate(r)
	if err != nil {
		s.log.Debugf("rejected upgrade from %s: %v", r.RemoteAddr, err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	c := newConn(ws, s.log)
	if err := s.hub.Register(c, userID, username); err != nil {
		s.log.Errorf("register conn %s: %v", c.id, err)
		c.close()
		return
	}
	s.log.Infof("user %d (%s) connected as conn %s", userID, username, c.id)

	go c.writeLoop()
	c.readLoop(s.router.Dispatch)

	s.handleDisconnect(c)
}

// handleDisconnect runs the full teardown for one connection: forfeit
// open matches first, then leave every room, then release the socket.
func (s *Server) handleDisconnect(c *Conn) {
	if userID, username, ok := s.hub.User(c); ok {
		s.matches.HandleDisconnect(userID)
		s.log.Infof("user %d (%s) disconnected", userID, username)
	}
	s.hub.Unregister(c)
	c.close()
}

// Run serves until ctx is cancelled, then shuts down in dependency
// order: listener, simulations, connections, storage last.
func (s *Server) Run(ctx context.Context) error {
	s.ctx = ctx

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ServeWS)
	s.httpSrv = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Infof("listening on %s", s.cfg.ListenAddr)
		if err := s.httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.shutdown()
		return gctx.Err()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) shutdown() {
	s.log.Infof("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(sctx); err != nil {
		s.log.Warnf("http shutdown: %v", err)
	}

	s.matches.StopAll()
	s.hub.CloseAll()

	if err := s.db.Close(); err != nil {
		s.log.Warnf("close storage: %v", err)
	}
}

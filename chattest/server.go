// Package chattest is an in-process chat backend speaking the same
// HTTP and websocket contract as the production server. It exists so
// the client packages can be tested against the real wire protocol
// without a network or external services.
package chattest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
)

const defaultAccessTTL = 15 * time.Minute

type user struct {
	id           string
	nickname     string
	passwordHash []byte
	refreshToken string
}

// Server is the fake backend. Create with New, then Start (or mount
// Handler on a server of your own).
type Server struct {
	logger    *slog.Logger
	router    *mux.Router
	accessTTL time.Duration

	mu         sync.Mutex
	signingKey string
	users      map[string]*user // by nickname
	rooms      map[string]*room // by id
	roomOrder  []string

	httpServer *httptest.Server
}

func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		logger:     logger,
		accessTTL:  defaultAccessTTL,
		signingKey: uuid.NewString(),
		users:      make(map[string]*user),
		rooms:      make(map[string]*room),
	}

	r := mux.NewRouter()
	r.HandleFunc("/user/register", s.handleRegister).Methods("POST")
	r.HandleFunc("/user/login", s.handleLogin).Methods("POST")
	r.HandleFunc("/user/refresh", s.handleRefresh).Methods("POST")
	r.HandleFunc("/chat/rooms", s.requireAuth(s.handleListRooms)).Methods("GET")
	r.HandleFunc("/chat/rooms", s.requireAuth(s.handleCreateRoom)).Methods("POST")
	r.HandleFunc("/chat/rooms/{id}/clients", s.requireAuth(s.handleListClients)).Methods("GET")
	r.HandleFunc("/chat/rooms/{id}", s.requireAuth(s.handleJoinRoom))
	s.router = r

	return s
}

// Handler returns the HTTP handler for mounting on any server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the backend on an httptest server and returns its base
// URL. Callers own the returned server only through Close.
func (s *Server) Start() string {
	s.httpServer = httptest.NewServer(s.router)
	return s.httpServer.URL
}

// wsBase is convenience for tests: Start's URL with a ws scheme.
func (s *Server) WSBase() string {
	return "ws" + strings.TrimPrefix(s.httpServer.URL, "http")
}

func (s *Server) Close() {
	if s.httpServer != nil {
		s.httpServer.Close()
	}
}

// RotateSigningKey invalidates every outstanding access token while
// leaving refresh tokens valid. Tests use it to force the 401 refresh
// path.
func (s *Server) RotateSigningKey() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signingKey = uuid.NewString()
}

type authRequest struct {
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	Nickname     string `json:"nickname"`
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type roomResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type errorBody struct {
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorBody{Message: message})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "can not unmarshal request body", http.StatusBadRequest)
		return
	}
	if req.Nickname == "" || req.Password == "" {
		writeError(w, "nickname and password are required", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		writeError(w, "failed to hash password", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.Nickname]; exists {
		writeError(w, "a user with that nickname already exists", http.StatusBadRequest)
		return
	}
	s.users[req.Nickname] = &user{
		id:           uuid.NewString(),
		nickname:     req.Nickname,
		passwordHash: hash,
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "can not unmarshal request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[req.Nickname]
	if !ok || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(req.Password)) != nil {
		writeError(w, "invalid nickname or password", http.StatusUnauthorized)
		return
	}

	s.issueTokensLocked(w, u)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "can not unmarshal request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.refreshToken != "" && u.refreshToken == req.RefreshToken {
			s.issueTokensLocked(w, u)
			return
		}
	}
	writeError(w, "invalid refresh token", http.StatusUnauthorized)
}

// issueTokensLocked mints a fresh access/refresh pair. Callers hold s.mu.
func (s *Server) issueTokensLocked(w http.ResponseWriter, u *user) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       u.id,
		"nickname": u.nickname,
		"exp":      time.Now().Add(s.accessTTL).Unix(),
	})
	signed, err := token.SignedString([]byte(s.signingKey))
	if err != nil {
		writeError(w, "failed to sign token", http.StatusInternalServerError)
		return
	}

	u.refreshToken = uuid.NewString()

	writeJSON(w, tokenResponse{
		Nickname:     u.nickname,
		UserID:       u.id,
		AccessToken:  signed,
		RefreshToken: u.refreshToken,
	})
}

// parseToken validates an access token and returns the identity claims.
func (s *Server) parseToken(raw string) (id, nickname string, err error) {
	s.mu.Lock()
	key := s.signingKey
	s.mu.Unlock()

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(key), nil
	})
	if err != nil {
		return "", "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("invalid token")
	}
	id, _ = claims["id"].(string)
	nickname, _ = claims["nickname"].(string)
	return id, nickname, nil
}

// requireAuth accepts the bearer header or, for websocket joins, the
// access_token query parameter the browser client uses.
func (s *Server) requireAuth(next func(http.ResponseWriter, *http.Request, string, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("Authorization")
		if raw == "" {
			raw = r.URL.Query().Get("access_token")
		}

		parts := strings.SplitN(raw, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			writeError(w, "invalid auth header", http.StatusUnauthorized)
			return
		}

		id, nickname, err := s.parseToken(parts[1])
		if err != nil {
			writeError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next(w, r, id, nickname)
	}
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request, _, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]roomResponse, 0, len(s.roomOrder))
	for _, id := range s.roomOrder {
		list = append(list, roomResponse{ID: id, Name: s.rooms[id].name})
	}
	writeJSON(w, list)
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request, _, _ string) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "can not unmarshal request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		writeError(w, "room name is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.rooms[id] = newRoom(id, req.Name, s.logger)
	s.roomOrder = append(s.roomOrder, id)

	writeJSON(w, roomResponse{ID: id, Name: req.Name})
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request, _, _ string) {
	roomID := mux.Vars(r)["id"]

	s.mu.Lock()
	rm, ok := s.rooms[roomID]
	s.mu.Unlock()
	if !ok {
		writeError(w, "room not found", http.StatusBadRequest)
		return
	}

	writeJSON(w, rm.participants())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request, userID, nickname string) {
	roomID := mux.Vars(r)["id"]

	s.mu.Lock()
	rm, ok := s.rooms[roomID]
	s.mu.Unlock()
	if !ok {
		writeError(w, "room not found", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection", slog.String("error", err.Error()))
		return
	}

	rm.join(conn, userID, nickname)
	defer func() {
		rm.leave(conn)
		conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		rm.post(conn, string(payload))
	}
}

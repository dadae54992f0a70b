// Quizlobby Trivia Game
//
// One player (the game master) creates a session and provides a
// question/answer pair. Other players join the lobby, the game master
// starts the round, and everyone races to guess the answer under a
// shared countdown and a three-attempt limit. First correct guess wins
// ten points and ends the round; so does running out the clock, or any
// player burning their last attempt.
//
// Features:
// - WebSockets per session ID: /path/:sessionid and /path/:sessionid/ws
// - Sessions created over a small JSON API, played over the socket
// - Players identified by cookie (playerID), so refreshes reconnect
// - Disconnects keep the seat warm for a grace period before removal
// - Game master role transfers in join order if the master leaves
// - Sessions auto-reaped after configurable idle timeout
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients
type ClientMessage struct {
	Type       string `json:"type"`                 // "join-session", "rejoin-session", "submit-question", "start-session", "submit-guess", "leave-session"
	PlayerName string `json:"playerName,omitempty"` // join-session
	PlayerID   string `json:"playerId,omitempty"`   // rejoin-session
	Question   string `json:"question,omitempty"`   // submit-question
	Answer     string `json:"answer,omitempty"`     // submit-question
	Guess      string `json:"guess,omitempty"`      // submit-guess
}

// SessionInfoMessage is sent immediately on connect so the client
// knows what this cookie's role is and what the session looks like.
type SessionInfoMessage struct {
	Type         string      `json:"type"` // "session-info"
	Session      SessionView `json:"session"`
	PlayerID     string      `json:"playerId"`
	IsExisting   bool        `json:"isExisting"`
	IsGameMaster bool        `json:"isGameMaster"`
}

// JoinResultMessage is the synchronous acknowledgement for
// join-session and rejoin-session, sent only to the requester.
type JoinResultMessage struct {
	Type    string       `json:"type"` // "join-result"
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
	Session *SessionView `json:"session,omitempty"`
	Player  *Player      `json:"player,omitempty"`
}

type PlayerJoinedMessage struct {
	Type    string      `json:"type"` // "player-joined"
	Player  *Player     `json:"player"`
	Session SessionView `json:"session"`
}

type PlayerCountMessage struct {
	Type    string      `json:"type"` // "player-count"
	Count   int         `json:"count"`
	Session SessionView `json:"session"`
}

type PlayerPresenceMessage struct {
	Type       string `json:"type"` // "player-disconnected" / "player-reconnected"
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

type QuestionConfirmedMessage struct {
	Type string `json:"type"` // "question-confirmed"
}

type SessionStartedMessage struct {
	Type    string      `json:"type"` // "session-started"
	Session SessionView `json:"session"`
}

type TimerUpdateMessage struct {
	Type          string `json:"type"` // "timer-update"
	TimeRemaining int    `json:"timeRemaining"`
}

type GuessResultMessage struct {
	Type         string `json:"type"` // "guess-result"
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	AttemptsLeft int    `json:"attemptsLeft"`
}

type GameOverMessage struct {
	Type          string         `json:"type"`   // "game-over"
	Reason        string         `json:"reason"` // "completed" or "timeout"
	Winner        string         `json:"winner,omitempty"`
	CorrectAnswer string         `json:"correctAnswer"`
	FinalScores   map[string]int `json:"finalScores"`
}

type SessionTerminatedMessage struct {
	Type   string `json:"type"` // "session-terminated"
	Reason string `json:"reason"`
}

type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type joinRequest struct {
	client *Client
	msg    ClientMessage
}

type sessionCommand struct {
	client *Client
	msg    ClientMessage
}

type guessRequest struct {
	client *Client
	msg    ClientMessage
}

// Hub owns the fan-out for one session. All inbound events funnel
// through its run loop, so per-session operations apply in arrival
// order.
type Hub struct {
	sessionID string
	clients   map[*Client]bool

	register chan *Client
	unreg    chan *Client
	joins    chan joinRequest
	cmds     chan sessionCommand
	guesses  chan guessRequest
	done     chan struct{}

	mu sync.RWMutex

	lastActive time.Time

	manager *SessionManager
}

func newHub(sessionID string, manager *SessionManager) *Hub {
	return &Hub{
		sessionID:  sessionID,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		joins:      make(chan joinRequest),
		cmds:       make(chan sessionCommand),
		guesses:    make(chan guessRequest),
		done:       make(chan struct{}),
		lastActive: time.Now(),
		manager:    manager,
	}
}

func (h *Hub) run(cfg *Config) {
	for {
		select {
		case <-h.done:
			return

		case c := <-h.register:
			h.handleRegister(c)

		case c := <-h.unreg:
			h.handleUnregister(cfg, c)

		case jr := <-h.joins:
			h.handleJoin(cfg, jr)

		case cmd := <-h.cmds:
			h.handleCommand(cfg, cmd)

		case gr := <-h.guesses:
			h.handleGuess(cfg, gr)
		}
	}
}

func (h *Hub) engine() *Engine {
	return h.manager.engine
}

func (h *Hub) handleRegister(c *Client) {
	session, ok := h.engine().store.Get(h.sessionID)
	if !ok {
		c.send <- SessionTerminatedMessage{
			Type:   "session-terminated",
			Reason: "session no longer exists",
		}
		close(c.send)
		return
	}

	h.mu.Lock()
	h.lastActive = time.Now()
	h.clients[c] = true
	h.mu.Unlock()

	// A returning cookie reclaims its roster slot silently.
	player, existing := h.engine().store.MarkReconnected(h.sessionID, c.playerID)

	view := session.view()

	h.reply(c, SessionInfoMessage{
		Type:         "session-info",
		Session:      view,
		PlayerID:     c.playerID,
		IsExisting:   existing,
		IsGameMaster: existing && view.GameMaster.ID == c.playerID,
	})

	if existing {
		h.broadcast(PlayerPresenceMessage{
			Type:       "player-reconnected",
			PlayerID:   player.ID,
			PlayerName: player.Name,
		})
	}
}

func (h *Hub) handleUnregister(cfg *Config, c *Client) {
	h.mu.Lock()
	h.lastActive = time.Now()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	if c.playerID == "" {
		return
	}

	// The roster keeps the seat; only the grace period expiring (or an
	// explicit leave) actually removes the player.
	if h.engine().store.MarkDisconnected(h.sessionID, c.playerID) {
		if session, ok := h.engine().store.Get(h.sessionID); ok {
			if player := lookupPlayer(session, c.playerID); player != nil {
				h.broadcast(PlayerPresenceMessage{
					Type:       "player-disconnected",
					PlayerID:   player.ID,
					PlayerName: player.Name,
				})
			}
		}

		go h.scheduleRemoval(cfg, c.playerID, cfg.playerTimeout)
	}
}

// scheduleRemoval waits for d, and if no client with this playerID has
// reconnected, removes the player for real.
func (h *Hub) scheduleRemoval(cfg *Config, playerID string, d time.Duration) {
	time.Sleep(d)

	h.mu.RLock()
	for client := range h.clients {
		if client.playerID == playerID {
			h.mu.RUnlock()
			return
		}
	}
	h.mu.RUnlock()

	removed, emptied, err := h.engine().RemovePlayer(h.sessionID, playerID)
	if err != nil || !removed {
		return
	}

	logf(cfg, "GAMES: Removed idle player %s from %s", playerID, h.sessionID)

	if emptied {
		h.manager.terminate(cfg, h.sessionID, "all players left")
		return
	}

	h.broadcastRoster()
}

func (h *Hub) handleJoin(cfg *Config, jr joinRequest) {
	c := jr.client
	msg := jr.msg

	h.touch()

	switch msg.Type {
	case "join-session":
		h.joinPlayer(cfg, c, msg.PlayerName)

	case "rejoin-session":
		playerID := msg.PlayerID
		if playerID == "" {
			playerID = c.playerID
		}

		player, ok := h.engine().store.MarkReconnected(h.sessionID, playerID)
		if !ok {
			h.reply(c, JoinResultMessage{
				Type:    "join-result",
				Success: false,
				Error:   "no such player in this session",
			})
			return
		}

		view := h.sessionView()
		h.reply(c, JoinResultMessage{
			Type:    "join-result",
			Success: true,
			Session: view,
			Player:  player,
		})

		h.broadcast(PlayerPresenceMessage{
			Type:       "player-reconnected",
			PlayerID:   player.ID,
			PlayerName: player.Name,
		})
	}
}

func (h *Hub) joinPlayer(cfg *Config, c *Client, name string) {
	if err := validatePlayerName(name); err != nil {
		h.reply(c, JoinResultMessage{
			Type:    "join-result",
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	session, ok := h.engine().store.Get(h.sessionID)
	if !ok {
		h.reply(c, JoinResultMessage{
			Type:    "join-result",
			Success: false,
			Error:   "session not found",
		})
		return
	}

	// Rejoining under the same cookie is idempotent.
	if player := lookupPlayer(session, c.playerID); player != nil {
		view := session.view()
		h.reply(c, JoinResultMessage{
			Type:    "join-result",
			Success: true,
			Session: &view,
			Player:  player,
		})
		return
	}

	if playerNameTaken(session, name) {
		h.reply(c, JoinResultMessage{
			Type:    "join-result",
			Success: false,
			Error:   "Player name already exists in this session",
		})
		return
	}

	player, err := h.engine().store.AddPlayer(h.sessionID, c.playerID, name)
	if err != nil {
		h.reply(c, JoinResultMessage{
			Type:    "join-result",
			Success: false,
			Error:   joinError(err),
		})
		return
	}

	logf(cfg, "GAMES: Player %q joined %s", name, h.sessionID)

	view := session.view()
	h.reply(c, JoinResultMessage{
		Type:    "join-result",
		Success: true,
		Session: &view,
		Player:  player,
	})

	h.broadcast(PlayerJoinedMessage{
		Type:    "player-joined",
		Player:  player,
		Session: view,
	})
	h.broadcastRoster()
}

func (h *Hub) handleCommand(cfg *Config, cmd sessionCommand) {
	c := cmd.client
	msg := cmd.msg

	h.touch()

	session, ok := h.engine().store.Get(h.sessionID)
	if !ok {
		h.reply(c, ErrorMessage{Type: "error", Message: "session not found"})
		return
	}

	switch msg.Type {
	case "submit-question":
		if session.view().GameMaster.ID != c.playerID {
			h.reply(c, ErrorMessage{Type: "error", Message: "only the game master can set the question"})
			return
		}
		if err := validateQuestion(msg.Question); err != nil {
			h.reply(c, ErrorMessage{Type: "error", Message: err.Error()})
			return
		}
		if err := validateAnswer(msg.Answer); err != nil {
			h.reply(c, ErrorMessage{Type: "error", Message: err.Error()})
			return
		}
		if err := h.engine().SetQuestion(h.sessionID, msg.Question, msg.Answer); err != nil {
			h.reply(c, ErrorMessage{Type: "error", Message: commandError(err)})
			return
		}

		h.reply(c, QuestionConfirmedMessage{Type: "question-confirmed"})

	case "start-session":
		if session.view().GameMaster.ID != c.playerID {
			h.reply(c, ErrorMessage{Type: "error", Message: "only the game master can start the session"})
			return
		}

		view, err := h.engine().StartRound(h.sessionID,
			func(remaining int) {
				h.broadcast(TimerUpdateMessage{
					Type:          "timer-update",
					TimeRemaining: remaining,
				})
			},
			func(answer string, finalScores map[string]int) {
				logf(cfg, "GAMES: Session %s timed out", h.sessionID)
				h.broadcast(GameOverMessage{
					Type:          "game-over",
					Reason:        "timeout",
					CorrectAnswer: answer,
					FinalScores:   finalScores,
				})
			},
		)
		if err != nil {
			h.reply(c, ErrorMessage{Type: "error", Message: startError(err)})
			return
		}

		logf(cfg, "GAMES: Session %s started", h.sessionID)
		h.broadcast(SessionStartedMessage{
			Type:    "session-started",
			Session: view,
		})

	case "leave-session":
		removed, emptied, err := h.engine().RemovePlayer(h.sessionID, c.playerID)
		if err != nil || !removed {
			return
		}
		if emptied {
			h.manager.terminate(cfg, h.sessionID, "all players left")
			return
		}
		h.broadcastRoster()
	}
}

func (h *Hub) handleGuess(cfg *Config, gr guessRequest) {
	c := gr.client
	msg := gr.msg

	h.touch()

	if err := validateGuess(msg.Guess); err != nil {
		h.reply(c, ErrorMessage{Type: "error", Message: err.Error()})
		return
	}

	outcome, err := h.engine().SubmitGuess(h.sessionID, c.playerID, msg.Guess)
	if err != nil {
		h.reply(c, ErrorMessage{Type: "error", Message: guessError(err)})
		return
	}

	h.reply(c, GuessResultMessage{
		Type:         "guess-result",
		Success:      outcome.Success,
		Message:      outcome.Message,
		AttemptsLeft: outcome.AttemptsLeft,
	})

	if outcome.GameOver {
		logf(cfg, "GAMES: Session %s completed, winner %q", h.sessionID, outcome.Winner)
		h.broadcast(GameOverMessage{
			Type:          "game-over",
			Reason:        "completed",
			Winner:        outcome.Winner,
			CorrectAnswer: outcome.CorrectAnswer,
			FinalScores:   outcome.FinalScores,
		})
	}
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) sessionView() *SessionView {
	session, ok := h.engine().store.Get(h.sessionID)
	if !ok {
		return nil
	}
	view := session.view()
	return &view
}

func (h *Hub) broadcastRoster() {
	session, ok := h.engine().store.Get(h.sessionID)
	if !ok {
		return
	}
	view := session.view()
	h.broadcast(PlayerCountMessage{
		Type:    "player-count",
		Count:   len(view.Players),
		Session: view,
	})
}

// reply delivers a message to one client, if it is still registered.
// A broadcast may have already dropped and closed a slow client, so
// every per-client send goes through this guard.
func (h *Hub) reply(c *Client, msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// closeAll disconnects all clients of this hub (used on termination).
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

func lookupPlayer(session *Session, playerID string) *Player {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.playerLocked(playerID)
}

func playerNameTaken(session *Session, name string) bool {
	session.mu.Lock()
	defer session.mu.Unlock()

	for _, p := range session.Players {
		if strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

func joinError(err error) string {
	switch err {
	case ErrSessionNotFound:
		return "session not found"
	case ErrInvalidState:
		return "Cannot join a game that has already started"
	}
	return err.Error()
}

func commandError(err error) string {
	switch err {
	case ErrSessionNotFound:
		return "session not found"
	case ErrInvalidState:
		return "the question can only be changed before the round starts"
	}
	return err.Error()
}

func startError(err error) string {
	switch err {
	case ErrSessionNotFound:
		return "session not found"
	case ErrInvalidState:
		return "a session needs a question and at least two players, and can only be started once"
	}
	return err.Error()
}

func guessError(err error) string {
	switch err {
	case ErrSessionNotFound:
		return "session not found"
	case ErrPlayerNotFound:
		return "join the session before guessing"
	case ErrInvalidState:
		return "Game is not active or time has expired"
	}
	return err.Error()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "quizlobby_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// SessionManager holds a set of hubs keyed by session ID, so each
// $path/$sessionid is its own isolated game.
type SessionManager struct {
	mu     sync.Mutex
	hubs   map[string]*Hub
	engine *Engine
	cfg    *Config
}

func newSessionManager(cfg *Config, engine *Engine) *SessionManager {
	sm := &SessionManager{
		hubs:   make(map[string]*Hub),
		engine: engine,
		cfg:    cfg,
	}
	if cfg.sessionTimeout > 0 {
		go sm.reaperLoop(cfg)
	}
	return sm
}

// createSession mints the session entity and its hub together.
func (sm *SessionManager) createSession(cfg *Config, name, gameMasterID, gameMasterName string) *Session {
	session := sm.engine.CreateSession(name, gameMasterID, gameMasterName)

	hub := newHub(session.ID, sm)

	sm.mu.Lock()
	sm.hubs[session.ID] = hub
	sm.mu.Unlock()

	go hub.run(cfg)

	logf(cfg, "GAMES: Created session %s (%q) for %q", session.ID, name, gameMasterName)

	return session
}

func (sm *SessionManager) getHub(sessionID string) (*Hub, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	hub, ok := sm.hubs[sessionID]
	return hub, ok
}

// terminate tears down a session and its hub in one motion: the
// session, its attempts, and its timer go together.
func (sm *SessionManager) terminate(cfg *Config, sessionID, reason string) {
	sm.mu.Lock()
	hub, ok := sm.hubs[sessionID]
	delete(sm.hubs, sessionID)
	sm.mu.Unlock()

	sm.engine.DeleteSession(sessionID)

	if !ok {
		return
	}

	logf(cfg, "GAMES: Terminated session %s (%s)", sessionID, reason)

	hub.broadcast(SessionTerminatedMessage{
		Type:   "session-terminated",
		Reason: reason,
	})
	close(hub.done)
	hub.closeAll()
}

// reaperLoop periodically removes sessions idle longer than the
// configured timeout.
func (sm *SessionManager) reaperLoop(cfg *Config) {
	ticker := time.NewTicker(cfg.sessionTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-cfg.sessionTimeout)

		sm.mu.Lock()
		stale := make([]string, 0)
		for id, hub := range sm.hubs {
			hub.mu.RLock()
			last := hub.lastActive
			hub.mu.RUnlock()

			if last.Before(cutoff) {
				stale = append(stale, id)
			}
		}
		sm.mu.Unlock()

		for _, id := range stale {
			sm.terminate(cfg, id, "idle")
		}
	}
}

// WebSocket handler that picks the hub based on :sessionid
func serveWSForManager(cfg *Config, sm *SessionManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sessionID := ps.ByName("sessionid")
		if sessionID == "" {
			http.Error(w, "missing session id", http.StatusBadRequest)
			return
		}

		hub, ok := sm.getHub(sessionID)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "join-session", "rejoin-session":
			select {
			case h.joins <- joinRequest{client: c, msg: msg}:
			case <-h.done:
				return
			}
		case "submit-question", "start-session", "leave-session":
			select {
			case h.cmds <- sessionCommand{client: c, msg: msg}:
			case <-h.done:
				return
			}
		case "submit-guess":
			select {
			case h.guesses <- guessRequest{client: c, msg: msg}:
			case <-h.done:
				return
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current session URL.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sessionID := ps.ByName("sessionid")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:sessionid/qr; strip trailing "/qr" to get the session URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// registerTriviaGame sets up routes so that:
//   - $path/:sessionid          → HTML client
//   - $path/:sessionid/ws       → WebSocket for that session
//   - $path/:sessionid/qr       → PNG QR code for that session URL
//
// Session creation lives on the JSON API (web.go), which also needs
// the manager, so it is returned to the caller.
func registerTriviaGame(cfg *Config, path string, mux *httprouter.Router, engine *Engine) *SessionManager {
	sm := newSessionManager(cfg, engine)

	// Per-session client view (HTML)
	mux.GET(cfg.prefix+path+"/:sessionid", getIndexHandler(cfg))

	// Shared assets (no sessionid in route)
	mux.GET(cfg.prefix+"/assets/trivia/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/trivia/app.js", getJsHandler(cfg))

	// Per-session websocket
	mux.GET(cfg.prefix+path+"/:sessionid/ws", serveWSForManager(cfg, sm))

	// Per-session QR code
	mux.GET(cfg.prefix+path+"/:sessionid/qr", qrHandler)

	return sm
}

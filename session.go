package main

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// rank orders the lifecycle so status transitions can be checked for
// monotonicity: waiting -> active -> completed, never backwards.
func (s Status) rank() int {
	switch s {
	case StatusWaiting:
		return 0
	case StatusActive:
		return 1
	case StatusCompleted:
		return 2
	}
	return -1
}

// Player is one roster entry. Attempts mirrors the tracker count for
// display; the AttemptTracker is authoritative for guess gating.
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Attempts int    `json:"attempts"`
}

// Session is one round of trivia: one question/answer pair, one roster.
// All mutation happens under mu, which serializes operations per
// session without blocking unrelated sessions.
type Session struct {
	ID         string
	Name       string
	GameMaster *Player
	Players    []*Player
	Question   string
	Answer     string
	Status     Status
	Timer      int
	Scores     map[string]int
	CreatedAt  time.Time

	disconnected map[string]bool

	mu sync.Mutex
}

// SessionView is the broadcast-safe snapshot of a session. It never
// carries the answer; that is only revealed by game-over.
type SessionView struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	GameMaster   *Player        `json:"gameMaster"`
	Players      []*Player      `json:"players"`
	Question     string         `json:"question,omitempty"`
	Status       Status         `json:"status"`
	Timer        int            `json:"timer"`
	Scores       map[string]int `json:"scores"`
	Disconnected []string       `json:"disconnected,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// viewLocked assumes s.mu is already held.
func (s *Session) viewLocked() SessionView {
	players := make([]*Player, 0, len(s.Players))
	for _, p := range s.Players {
		cp := *p
		players = append(players, &cp)
	}

	scores := make(map[string]int, len(s.Scores))
	for id, score := range s.Scores {
		scores[id] = score
	}

	var gone []string
	for id, out := range s.disconnected {
		if out {
			gone = append(gone, id)
		}
	}

	gm := *s.GameMaster

	return SessionView{
		ID:           s.ID,
		Name:         s.Name,
		GameMaster:   &gm,
		Players:      players,
		Question:     s.Question,
		Status:       s.Status,
		Timer:        s.Timer,
		Scores:       scores,
		Disconnected: gone,
		CreatedAt:    s.CreatedAt,
	}
}

func (s *Session) view() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// playerLocked assumes s.mu is already held.
func (s *Session) playerLocked(playerID string) *Player {
	for _, p := range s.Players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

// SessionUpdate is a partial update; nil fields are left untouched.
type SessionUpdate struct {
	Question *string
	Answer   *string
	Timer    *int
	Status   *Status
}

// Store owns every Session and Player. It is the only component that
// creates or destroys them; attempts and timers are keyed off session
// IDs but torn down explicitly by the engine on deletion.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// Create always succeeds given valid inputs. The game master joins
// their own roster immediately with a zero score.
func (st *Store) Create(name, gameMasterID, gameMasterName, question, answer string, timerSeconds int) *Session {
	if gameMasterID == "" {
		gameMasterID = uuid.NewString()
	}

	gm := &Player{
		ID:   gameMasterID,
		Name: gameMasterName,
	}

	session := &Session{
		ID:           uuid.NewString(),
		Name:         name,
		GameMaster:   gm,
		Players:      []*Player{gm},
		Question:     question,
		Answer:       answer,
		Status:       StatusWaiting,
		Timer:        timerSeconds,
		Scores:       map[string]int{gm.ID: 0},
		CreatedAt:    time.Now(),
		disconnected: make(map[string]bool),
	}

	st.mu.Lock()
	st.sessions[session.ID] = session
	st.mu.Unlock()

	return session
}

// Get returns the session if present. Absence is not an error here;
// callers decide what it means.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	session, ok := st.sessions[id]
	return session, ok
}

func (st *Store) Update(id string, updates SessionUpdate) (*Session, error) {
	session, ok := st.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if updates.Status != nil {
		if updates.Status.rank() < session.Status.rank() {
			return nil, ErrInvalidState
		}
		session.Status = *updates.Status
	}
	if updates.Question != nil {
		session.Question = *updates.Question
	}
	if updates.Answer != nil {
		session.Answer = *updates.Answer
	}
	if updates.Timer != nil {
		session.Timer = *updates.Timer
	}

	return session, nil
}

// Delete removes the session from the map and marks the entity
// completed, so any operation still holding a stale pointer rejects
// instead of mutating a torn-down session.
func (st *Store) Delete(id string) bool {
	st.mu.Lock()
	session, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if !ok {
		return false
	}

	session.mu.Lock()
	session.Status = StatusCompleted
	session.mu.Unlock()

	return true
}

// AddPlayer appends to the roster. Joining is only legal while the
// session is still waiting; nobody enters mid-round.
func (st *Store) AddPlayer(sessionID, playerID, name string) (*Player, error) {
	session, ok := st.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.Status != StatusWaiting {
		return nil, ErrInvalidState
	}

	if playerID == "" {
		playerID = uuid.NewString()
	}

	player := &Player{
		ID:   playerID,
		Name: name,
	}

	session.Players = append(session.Players, player)
	session.Scores[player.ID] = 0

	return player, nil
}

// RemovePlayer drops the player from roster and scores. An emptied
// session is destroyed as a side effect; if the game master left and
// players remain, the role passes to the next player in join order.
func (st *Store) RemovePlayer(sessionID, playerID string) (removed bool, emptied bool, err error) {
	session, ok := st.Get(sessionID)
	if !ok {
		return false, false, ErrSessionNotFound
	}

	session.mu.Lock()

	dst := session.Players[:0]
	for _, p := range session.Players {
		if p.ID == playerID {
			removed = true
			continue
		}
		dst = append(dst, p)
	}
	session.Players = dst
	delete(session.Scores, playerID)
	delete(session.disconnected, playerID)

	if len(session.Players) == 0 {
		session.mu.Unlock()
		st.Delete(sessionID)
		return removed, true, nil
	}

	if session.GameMaster.ID == playerID {
		session.GameMaster = session.Players[0]
	}

	session.mu.Unlock()
	return removed, false, nil
}

// UpdatePlayerScore applies a score delta and mirrors it into the
// score map. Scoring counts as an attempt on the player record.
func (st *Store) UpdatePlayerScore(sessionID, playerID string, delta int) (int, error) {
	session, ok := st.Get(sessionID)
	if !ok {
		return 0, ErrSessionNotFound
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	player := session.playerLocked(playerID)
	if player == nil {
		return 0, ErrPlayerNotFound
	}

	player.Score += delta
	session.Scores[playerID] = player.Score
	player.Attempts++

	return player.Score, nil
}

// ListActive returns every session that has not yet completed, in no
// particular order.
func (st *Store) ListActive() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	active := make([]*Session, 0, len(st.sessions))
	for _, session := range st.sessions {
		session.mu.Lock()
		completed := session.Status == StatusCompleted
		session.mu.Unlock()

		if !completed {
			active = append(active, session)
		}
	}
	return active
}

// MarkDisconnected flags a player as gone without touching roster or
// scores. The transport decides when (or whether) to actually remove
// them.
func (st *Store) MarkDisconnected(sessionID, playerID string) bool {
	session, ok := st.Get(sessionID)
	if !ok {
		return false
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.playerLocked(playerID) == nil {
		return false
	}
	session.disconnected[playerID] = true
	return true
}

// MarkReconnected clears the disconnected flag. Returns the player so
// the caller can confirm the identity still holds a roster slot.
func (st *Store) MarkReconnected(sessionID, playerID string) (*Player, bool) {
	session, ok := st.Get(sessionID)
	if !ok {
		return nil, false
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	player := session.playerLocked(playerID)
	if player == nil {
		return nil, false
	}
	delete(session.disconnected, playerID)
	return player, true
}

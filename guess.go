package main

import (
	"fmt"
	"strings"
)

// pointsPerWin is awarded for the first correct guess of a round.
const pointsPerWin = 10

// GuessOutcome is the result of applying one guess to a session.
type GuessOutcome struct {
	Success       bool           `json:"success"`
	Message       string         `json:"message"`
	AttemptsLeft  int            `json:"attemptsLeft"`
	GameOver      bool           `json:"isGameOver"`
	Winner        string         `json:"winner,omitempty"`
	CorrectAnswer string         `json:"correctAnswer,omitempty"`
	FinalScores   map[string]int `json:"finalScores,omitempty"`
}

// Engine ties the store, attempt tracker, and timer service together.
// Session deletion tears all three down as one unit: a session either
// exists with its attempts and timer, or none of them do.
type Engine struct {
	store        *Store
	attempts     *AttemptTracker
	timers       *TimerService
	roundSeconds int
}

func newEngine(store *Store, attempts *AttemptTracker, timers *TimerService, roundSeconds int) *Engine {
	return &Engine{
		store:        store,
		attempts:     attempts,
		timers:       timers,
		roundSeconds: roundSeconds,
	}
}

func (e *Engine) CreateSession(name, gameMasterID, gameMasterName string) *Session {
	return e.store.Create(name, gameMasterID, gameMasterName, "", "", e.roundSeconds)
}

func (e *Engine) DeleteSession(sessionID string) bool {
	e.timers.Stop(sessionID)
	e.attempts.ClearSession(sessionID)
	return e.store.Delete(sessionID)
}

// RemovePlayer drops a player and their attempt count. Emptying the
// roster destroys the session, including its timer.
func (e *Engine) RemovePlayer(sessionID, playerID string) (removed bool, emptied bool, err error) {
	removed, emptied, err = e.store.RemovePlayer(sessionID, playerID)
	if err != nil {
		return removed, emptied, err
	}

	if emptied {
		e.timers.Stop(sessionID)
		e.attempts.ClearSession(sessionID)
	} else {
		e.attempts.ClearPlayer(sessionID, playerID)
	}

	return removed, emptied, nil
}

// SetQuestion stores the round's question and answer. Only legal
// before the round starts.
func (e *Engine) SetQuestion(sessionID, question, answer string) error {
	session, ok := e.store.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.Status != StatusWaiting {
		return ErrInvalidState
	}

	session.Question = question
	session.Answer = answer
	return nil
}

// StartRound flips the session to active and begins its countdown.
// onTick fires once per elapsed second with the remaining value;
// onExpire fires if the clock runs out before a completing guess, with
// the answer and frozen scores. A round needs a question and at least
// two players.
func (e *Engine) StartRound(sessionID string, onTick func(remaining int), onExpire func(answer string, finalScores map[string]int)) (SessionView, error) {
	session, ok := e.store.Get(sessionID)
	if !ok {
		return SessionView{}, ErrSessionNotFound
	}

	session.mu.Lock()

	if session.Status != StatusWaiting || session.Question == "" || len(session.Players) < 2 {
		session.mu.Unlock()
		return SessionView{}, ErrInvalidState
	}

	session.Status = StatusActive
	session.Timer = e.roundSeconds
	view := session.viewLocked()
	session.mu.Unlock()

	e.timers.Start(sessionID, e.roundSeconds, func(remaining int) {
		session.mu.Lock()
		if session.Status == StatusActive {
			session.Timer = remaining
		}
		session.mu.Unlock()

		if onTick != nil {
			onTick(remaining)
		}
	}, func() {
		answer, scores, expired := e.completeByTimeout(session)
		if expired && onExpire != nil {
			onExpire(answer, scores)
		}
	})

	return view, nil
}

// completeByTimeout is the expiry half of the timer-vs-guess race.
// Whichever transition to completed happens first wins; if a guess
// already ended the round this is a no-op.
func (e *Engine) completeByTimeout(session *Session) (answer string, finalScores map[string]int, expired bool) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.Status != StatusActive {
		return "", nil, false
	}

	session.Status = StatusCompleted
	session.Timer = 0

	scores := make(map[string]int, len(session.Scores))
	for id, score := range session.Scores {
		scores[id] = score
	}

	return session.Answer, scores, true
}

// SubmitGuess applies one player's guess: gate on state and remaining
// time, charge an attempt, compare case-insensitively, score and
// complete as needed. The session lock is held for the whole
// evaluation so concurrent guesses cannot interleave and double-score.
func (e *Engine) SubmitGuess(sessionID, playerID, guess string) (GuessOutcome, error) {
	session, ok := e.store.Get(sessionID)
	if !ok {
		return GuessOutcome{}, ErrSessionNotFound
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.Status != StatusActive || session.Timer <= 0 {
		return GuessOutcome{}, ErrInvalidState
	}

	player := session.playerLocked(playerID)
	if player == nil {
		return GuessOutcome{}, ErrPlayerNotFound
	}

	if e.attempts.Get(sessionID, playerID) >= maxAttempts {
		return GuessOutcome{
			Success:      false,
			Message:      "You have no attempts left",
			AttemptsLeft: 0,
			GameOver:     false,
		}, nil
	}

	attempts := e.attempts.Increment(sessionID, playerID)
	player.Attempts = attempts

	attemptsLeft := maxAttempts - attempts
	if attemptsLeft < 0 {
		attemptsLeft = 0
	}

	if strings.ToLower(guess) == strings.ToLower(session.Answer) {
		player.Score += pointsPerWin
		session.Scores[playerID] = player.Score
		session.Status = StatusCompleted

		outcome := GuessOutcome{
			Success:       true,
			Message:       "Correct! You won!",
			AttemptsLeft:  attemptsLeft,
			GameOver:      true,
			Winner:        player.Name,
			CorrectAnswer: session.Answer,
			FinalScores:   copyScoresLocked(session),
		}

		e.timers.Stop(sessionID)
		return outcome, nil
	}

	if attemptsLeft == 0 {
		// Exhausting the limit ends the round for everyone, not just
		// this player.
		session.Status = StatusCompleted

		outcome := GuessOutcome{
			Success:       false,
			Message:       "No attempts left. Game Over!",
			AttemptsLeft:  0,
			GameOver:      true,
			CorrectAnswer: session.Answer,
			FinalScores:   copyScoresLocked(session),
		}

		e.timers.Stop(sessionID)
		return outcome, nil
	}

	return GuessOutcome{
		Success:      false,
		Message:      fmt.Sprintf("Incorrect guess. %d attempts left.", attemptsLeft),
		AttemptsLeft: attemptsLeft,
		GameOver:     false,
	}, nil
}

// copyScoresLocked assumes the session lock is held.
func copyScoresLocked(session *Session) map[string]int {
	scores := make(map[string]int, len(session.Scores))
	for id, score := range session.Scores {
		scores[id] = score
	}
	return scores
}

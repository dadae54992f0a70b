package main

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestEngine uses a tick interval long enough that the countdown
// never fires during a test.
func newTestEngine(roundSeconds int) *Engine {
	return newEngine(newStore(), newAttemptTracker(), newTimerService(time.Hour), roundSeconds)
}

// startedRound creates a two-player session with a question set and
// the round running.
func startedRound(t *testing.T, e *Engine, question, answer string) (*Session, *Player, *Player) {
	t.Helper()

	session := e.CreateSession("Trivia Night", "", "Alice")
	bob, err := e.store.AddPlayer(session.ID, "", "Bob")
	require.NoError(t, err)

	require.NoError(t, e.SetQuestion(session.ID, question, answer))

	_, err = e.StartRound(session.ID, nil, nil)
	require.NoError(t, err)

	return session, session.view().GameMaster, bob
}

func TestSubmitGuessScenario(t *testing.T) {
	e := newTestEngine(60)
	session, _, bob := startedRound(t, e, "What is 2 plus 2?", "4")

	assert.Equal(t, StatusActive, session.view().Status)
	assert.Equal(t, 60, session.view().Timer)

	t.Run("incorrect guess costs an attempt", func(t *testing.T) {
		outcome, err := e.SubmitGuess(session.ID, bob.ID, "3")
		require.NoError(t, err)
		assert.False(t, outcome.Success)
		assert.False(t, outcome.GameOver)
		assert.Equal(t, 2, outcome.AttemptsLeft)
		assert.Equal(t, "Incorrect guess. 2 attempts left.", outcome.Message)
	})

	t.Run("correct guess wins and completes the round", func(t *testing.T) {
		outcome, err := e.SubmitGuess(session.ID, bob.ID, "4")
		require.NoError(t, err)
		assert.True(t, outcome.Success)
		assert.True(t, outcome.GameOver)
		assert.Equal(t, "Bob", outcome.Winner)
		assert.Equal(t, "4", outcome.CorrectAnswer)
		assert.Equal(t, 10, outcome.FinalScores[bob.ID])

		view := session.view()
		assert.Equal(t, StatusCompleted, view.Status)
		assert.Equal(t, 10, view.Scores[bob.ID])
		assert.False(t, e.timers.Running(session.ID))
	})

	t.Run("guessing after completion is rejected", func(t *testing.T) {
		_, err := e.SubmitGuess(session.ID, bob.ID, "4")
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestSubmitGuessAttemptExhaustion(t *testing.T) {
	e := newTestEngine(60)
	session, _, bob := startedRound(t, e, "What is 2 plus 2?", "4")

	for _, want := range []int{2, 1} {
		outcome, err := e.SubmitGuess(session.ID, bob.ID, "wrong")
		require.NoError(t, err)
		assert.False(t, outcome.GameOver)
		assert.Equal(t, want, outcome.AttemptsLeft)
	}

	// The third incorrect guess ends the round for everyone, not just
	// the exhausted player.
	outcome, err := e.SubmitGuess(session.ID, bob.ID, "wrong")
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.True(t, outcome.GameOver)
	assert.Equal(t, 0, outcome.AttemptsLeft)
	assert.Equal(t, "4", outcome.CorrectAnswer)
	assert.Equal(t, 0, outcome.FinalScores[bob.ID])
	assert.Equal(t, StatusCompleted, session.view().Status)
}

func TestSubmitGuessFourthAttempt(t *testing.T) {
	e := newTestEngine(60)
	session, _, bob := startedRound(t, e, "What is 2 plus 2?", "4")

	// Burn the limit on the tracker directly so the session itself
	// stays active.
	for i := 0; i < maxAttempts; i++ {
		e.attempts.Increment(session.ID, bob.ID)
	}

	outcome, err := e.SubmitGuess(session.ID, bob.ID, "4")
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.False(t, outcome.GameOver)
	assert.Equal(t, 0, outcome.AttemptsLeft)
	assert.Equal(t, "You have no attempts left", outcome.Message)

	// No further increment, no score change.
	assert.Equal(t, maxAttempts, e.attempts.Get(session.ID, bob.ID))
	assert.Equal(t, 0, session.view().Scores[bob.ID])
	assert.Equal(t, StatusActive, session.view().Status)
}

func TestSubmitGuessMatching(t *testing.T) {
	t.Run("case-insensitive match wins", func(t *testing.T) {
		e := newTestEngine(60)
		session, _, bob := startedRound(t, e, "What is the capital of France?", "Paris")

		outcome, err := e.SubmitGuess(session.ID, bob.ID, "paris")
		require.NoError(t, err)
		assert.True(t, outcome.Success)
	})

	t.Run("matching is lowercase equality, not full case folding", func(t *testing.T) {
		e := newTestEngine(60)
		// Greek final sigma folds to sigma, but lowercasing keeps them
		// distinct.
		session, _, bob := startedRound(t, e, "What is the last letter of Οδυσσεύς?", "ς")

		outcome, err := e.SubmitGuess(session.ID, bob.ID, "σ")
		require.NoError(t, err)
		assert.False(t, outcome.Success)
	})

	t.Run("trailing whitespace does not match", func(t *testing.T) {
		e := newTestEngine(60)
		session, _, bob := startedRound(t, e, "What is the capital of France?", "Paris")

		outcome, err := e.SubmitGuess(session.ID, bob.ID, "Paris ")
		require.NoError(t, err)
		assert.False(t, outcome.Success)
		assert.Equal(t, 2, outcome.AttemptsLeft)
	})
}

func TestSubmitGuessErrors(t *testing.T) {
	e := newTestEngine(60)

	t.Run("unknown session", func(t *testing.T) {
		_, err := e.SubmitGuess("nope", "someone", "4")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("unknown player", func(t *testing.T) {
		session, _, _ := startedRound(t, e, "What is 2 plus 2?", "4")
		_, err := e.SubmitGuess(session.ID, "nope", "4")
		assert.ErrorIs(t, err, ErrPlayerNotFound)
	})

	t.Run("round not started", func(t *testing.T) {
		session := e.CreateSession("Waiting Room", "", "Alice")
		gm := session.view().GameMaster
		_, err := e.SubmitGuess(session.ID, gm.ID, "4")
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestSubmitGuessConcurrent(t *testing.T) {
	e := newTestEngine(60)
	session, alice, bob := startedRound(t, e, "What is 2 plus 2?", "4")

	guessers := []*Player{alice, bob}

	var wg sync.WaitGroup
	outcomes := make(chan GuessOutcome, len(guessers))

	for _, p := range guessers {
		wg.Add(1)
		go func(playerID string) {
			defer wg.Done()
			outcome, err := e.SubmitGuess(session.ID, playerID, "4")
			if err == nil {
				outcomes <- outcome
			}
		}(p.ID)
	}
	wg.Wait()
	close(outcomes)

	wins := 0
	for outcome := range outcomes {
		if outcome.Success {
			wins++
		}
	}

	// Exactly one guess may complete the round; the loser either saw
	// the session already completed or lost the race cleanly.
	assert.Equal(t, 1, wins)

	view := session.view()
	assert.Equal(t, StatusCompleted, view.Status)
	assert.Equal(t, 10, view.Scores[alice.ID]+view.Scores[bob.ID])
}

func TestStartRoundRequirements(t *testing.T) {
	t.Run("needs a question", func(t *testing.T) {
		e := newTestEngine(60)
		session := e.CreateSession("Trivia Night", "", "Alice")
		_, err := e.store.AddPlayer(session.ID, "", "Bob")
		require.NoError(t, err)

		_, err = e.StartRound(session.ID, nil, nil)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("needs at least two players", func(t *testing.T) {
		e := newTestEngine(60)
		session := e.CreateSession("Trivia Night", "", "Alice")
		require.NoError(t, e.SetQuestion(session.ID, "What is 2 plus 2?", "4"))

		_, err := e.StartRound(session.ID, nil, nil)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("cannot start twice", func(t *testing.T) {
		e := newTestEngine(60)
		session, _, _ := startedRound(t, e, "What is 2 plus 2?", "4")

		_, err := e.StartRound(session.ID, nil, nil)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("question cannot change mid-round", func(t *testing.T) {
		e := newTestEngine(60)
		session, _, _ := startedRound(t, e, "What is 2 plus 2?", "4")

		err := e.SetQuestion(session.ID, "What is 3 plus 3?", "6")
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestEngineDeleteSession(t *testing.T) {
	e := newTestEngine(60)
	session, _, bob := startedRound(t, e, "What is 2 plus 2?", "4")

	_, err := e.SubmitGuess(session.ID, bob.ID, "wrong")
	require.NoError(t, err)

	require.True(t, e.DeleteSession(session.ID))

	_, ok := e.store.Get(session.ID)
	assert.False(t, ok)
	assert.False(t, e.timers.Running(session.ID))
	assert.Equal(t, 0, e.attempts.Get(session.ID, bob.ID))

	assert.False(t, e.DeleteSession(session.ID))
}

func TestEngineRemovePlayer(t *testing.T) {
	e := newTestEngine(60)
	session := e.CreateSession("Trivia Night", "", "Alice")
	bob, err := e.store.AddPlayer(session.ID, "", "Bob")
	require.NoError(t, err)

	e.attempts.Increment(session.ID, bob.ID)

	t.Run("clears the departing player's attempts", func(t *testing.T) {
		removed, emptied, err := e.RemovePlayer(session.ID, bob.ID)
		require.NoError(t, err)
		assert.True(t, removed)
		assert.False(t, emptied)
		assert.Equal(t, 0, e.attempts.Get(session.ID, bob.ID))
	})

	t.Run("last player out tears the session down", func(t *testing.T) {
		gmID := session.view().GameMaster.ID
		removed, emptied, err := e.RemovePlayer(session.ID, gmID)
		require.NoError(t, err)
		assert.True(t, removed)
		assert.True(t, emptied)

		_, ok := e.store.Get(session.ID)
		assert.False(t, ok)
	})
}

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSessionName(t *testing.T) {
	cases := []struct {
		name  string
		input string
		valid bool
	}{
		{"valid simple", "Trivia Night", true},
		{"valid alphanumeric", "Quiz42", true},
		{"too short", "ab", false},
		{"too long", "abcdefghijklmnopqrstu", false},
		{"empty", "", false},
		{"whitespace only", "    ", false},
		{"punctuation rejected", "quiz-night!", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateSessionName(tc.input)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.IsType(t, &ValidationError{}, err)
			}
		})
	}
}

func TestValidatePlayerName(t *testing.T) {
	cases := []struct {
		name  string
		input string
		valid bool
	}{
		{"valid", "Alice", true},
		{"valid with digits", "Bob99", true},
		{"too short", "A", false},
		{"too long", "abcdefghijklmnop", false},
		{"spaces rejected", "Bob Smith", false},
		{"empty", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePlayerName(tc.input)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateQuestion(t *testing.T) {
	cases := []struct {
		name  string
		input string
		valid bool
	}{
		{"valid", "What is 2 plus 2?", true},
		{"missing question mark", "What is 2 plus 2", false},
		{"too short", "Why not?", false},
		{"whitespace only", "          ", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateQuestion(tc.input)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}

	t.Run("rejects over 200 characters", func(t *testing.T) {
		long := make([]byte, 201)
		for i := range long {
			long[i] = 'a'
		}
		long[200] = '?'
		assert.Error(t, validateQuestion(string(long)))
	})
}

func TestValidateAnswerAndGuess(t *testing.T) {
	t.Run("single character answer is fine", func(t *testing.T) {
		assert.NoError(t, validateAnswer("4"))
	})

	t.Run("blank answer rejected", func(t *testing.T) {
		assert.Error(t, validateAnswer("   "))
	})

	t.Run("guess follows answer rules", func(t *testing.T) {
		assert.NoError(t, validateGuess("Paris"))
		err := validateGuess("")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "guess")
	})

	t.Run("over 50 characters rejected", func(t *testing.T) {
		long := make([]byte, 51)
		for i := range long {
			long[i] = 'x'
		}
		assert.Error(t, validateAnswer(string(long)))
	})
}

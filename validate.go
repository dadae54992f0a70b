package main

import (
	"regexp"
	"strings"
)

// Input constraints for player-supplied text. Nothing past this layer
// ever sees an unvalidated string.
const (
	minSessionNameLength = 3
	maxSessionNameLength = 20
	minPlayerNameLength  = 2
	maxPlayerNameLength  = 15
	minQuestionLength    = 10
	maxQuestionLength    = 200
	maxAnswerLength      = 50
)

var (
	sessionNameRegex = regexp.MustCompile(`^[a-zA-Z0-9\s]+$`)
	playerNameRegex  = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

func validateSessionName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "session name", Reason: "cannot be empty or only whitespace"}
	}
	if len(name) < minSessionNameLength {
		return &ValidationError{Field: "session name", Reason: "must be at least 3 characters long"}
	}
	if len(name) > maxSessionNameLength {
		return &ValidationError{Field: "session name", Reason: "cannot exceed 20 characters"}
	}
	if !sessionNameRegex.MatchString(name) {
		return &ValidationError{Field: "session name", Reason: "can only contain letters, numbers, and spaces"}
	}
	return nil
}

func validatePlayerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "player name", Reason: "cannot be empty or only whitespace"}
	}
	if len(name) < minPlayerNameLength {
		return &ValidationError{Field: "player name", Reason: "must be at least 2 characters long"}
	}
	if len(name) > maxPlayerNameLength {
		return &ValidationError{Field: "player name", Reason: "cannot exceed 15 characters"}
	}
	if !playerNameRegex.MatchString(name) {
		return &ValidationError{Field: "player name", Reason: "can only contain letters and numbers"}
	}
	return nil
}

func validateQuestion(question string) error {
	if strings.TrimSpace(question) == "" {
		return &ValidationError{Field: "question", Reason: "cannot be empty or only whitespace"}
	}
	if len(question) < minQuestionLength {
		return &ValidationError{Field: "question", Reason: "must be at least 10 characters long"}
	}
	if len(question) > maxQuestionLength {
		return &ValidationError{Field: "question", Reason: "cannot exceed 200 characters"}
	}
	if !strings.HasSuffix(strings.TrimSpace(question), "?") {
		return &ValidationError{Field: "question", Reason: "must end with a question mark"}
	}
	return nil
}

func validateAnswer(answer string) error {
	if strings.TrimSpace(answer) == "" {
		return &ValidationError{Field: "answer", Reason: "cannot be empty or only whitespace"}
	}
	if len(answer) > maxAnswerLength {
		return &ValidationError{Field: "answer", Reason: "cannot exceed 50 characters"}
	}
	return nil
}

// Guesses follow the same format rules as answers.
func validateGuess(guess string) error {
	if err := validateAnswer(guess); err != nil {
		return &ValidationError{Field: "guess", Reason: err.(*ValidationError).Reason}
	}
	return nil
}

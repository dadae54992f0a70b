// Package games holds gameplay design notes.
package games

// One player creates a session and becomes the game master
// They provide a question and its answer before starting the round
// Other players join the lobby by session link or QR code while the session is waiting
// When the game master starts the round, a shared 60-second countdown begins
// Players race to guess the answer; each player gets three attempts
// Guesses are compared case-insensitively against the stored answer
// The first correct guess scores 10 points and ends the round
// A player burning their last attempt also ends the round for everyone
// If the countdown expires first, the round ends with no winner and the answer is revealed

// Display formats:
// Lobby roster with join order, game master badge, connection status
// During the round: question, countdown, guess box with attempts remaining, live scoreboard

// Implementation details:
// - One websocket per joined player, one hub per session
// - Players identified by cookie, so a page refresh reclaims the same seat
// - Disconnects hold the seat for a grace period before the roster drops the player
// - If the game master leaves, the role passes to the next player in join order

package domain

import "errors"

var (
	// ErrEmptyMessage is returned when a send carries no content.
	ErrEmptyMessage = errors.New("message content is empty")

	// ErrSendTooSoon is returned when a send arrives inside the minimum
	// inter-message interval of the previous one.
	ErrSendTooSoon = errors.New("send rejected: previous send too recent")

	// ErrExchangeInFlight is returned when a send arrives while the
	// session's assistant reply is still streaming.
	ErrExchangeInFlight = errors.New("an exchange is already in flight for this session")

	// ErrPolicyBlocked is returned when the send policy blocks a message.
	ErrPolicyBlocked = errors.New("message blocked by send policy")

	// ErrSessionNotFound is returned for operations on an unknown session.
	ErrSessionNotFound = errors.New("session not found")
)

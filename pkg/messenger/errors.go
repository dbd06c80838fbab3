package messenger

import (
	"errors"

	"github.com/kabili207/pda-messenger/pkg/models"
)

var (
	ErrNotBound        = models.ErrNotBound
	ErrUnknownTerminal = errors.New("unknown terminal")
	ErrMissingIdentity = errors.New("identity inserted without credential details")
	ErrEmptyMessage    = errors.New("message text is empty")
	ErrMessageTooLong  = errors.New("message text is too long")
	ErrSelfMessage     = errors.New("cannot message yourself")
	ErrUnreachable     = errors.New("receiver is not reachable")
	ErrHistoryWrite    = errors.New("message could not be recorded")
)

// Popup texts understood by the terminal UI.
const (
	PopupFailedDelivery = "messenger-program-failed-delivery"
	PopupMessageTooLong = "messenger-program-message-too-long"
)

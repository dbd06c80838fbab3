package models

import "time"

// Message is a single private message. It is created by a send and never
// changed afterwards.
type Message struct {
	// SentTime is measured from the start of the round.
	SentTime time.Duration `json:"sent_time"`
	From     Identity      `json:"from"`
	To       Identity      `json:"to"`
	Text     string        `json:"text"`
}

// IsIncoming reports whether the message was received by owner.
func (m Message) IsIncoming(owner Identity) bool {
	return m.To == owner
}

// Partner returns the other side of the conversation as seen by owner.
func (m Message) Partner(owner Identity) Identity {
	if m.From == owner {
		return m.To
	}
	return m.From
}

package domain

import "time"

// HistoryMessage is one message fetched from a ticket channel for a transcript.
type HistoryMessage struct {
	Timestamp time.Time
	Author    string
	Text      string
}

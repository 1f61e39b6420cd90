package domain

import "time"

// Warning is one moderation strike. Warnings are append-only.
type Warning struct {
	Reason   string
	Issuer   string
	IssuedAt time.Time
}

package domain

import "time"

// SubjectType differentiates token holders on the ops API.
type SubjectType string

const (
	SubjectTypeOperator SubjectType = "OPERATOR"
)

// Token represents issued ops API token metadata.
type Token struct {
	SubjectID string
	Subject   SubjectType
	ExpiresAt time.Time
	IssuedAt  time.Time
}

package domain

import "time"

// RoleOption is a role candidates may apply for.
type RoleOption struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// PendingApplication links a candidate's chosen role to the question form
// they were shown. It lives only between form display and submission.
type PendingApplication struct {
	Candidate User
	Role      RoleOption
	OpenedAt  time.Time
}

// Answer pairs a configured question with the candidate's reply.
type Answer struct {
	Question string
	Answer   string
}

// Application is a submitted form handed to staff for review.
type Application struct {
	Candidate   User
	Role        RoleOption
	Answers     []Answer
	SubmittedAt time.Time
}

// Decision is a reviewer's verdict.
type Decision string

const (
	DecisionAccept Decision = "ACCEPT"
	DecisionReject Decision = "REJECT"
)

// PendingRejection holds a reject decision waiting for its reason form.
type PendingRejection struct {
	Reviewer  User
	Candidate string
	RoleID    string
	Review    MessageRef
}

// MessageRef points at a posted message so it can be edited later.
type MessageRef struct {
	ChannelID string
	MessageID string
}

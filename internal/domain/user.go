package domain

// User identifies a platform account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// SystemUser is the actor recorded for transitions the bot makes on its own,
// such as inactivity closure.
var SystemUser = User{ID: "system", Username: "system"}

// IsSystem reports whether u is the internal system actor.
func (u User) IsSystem() bool {
	return u.ID == SystemUser.ID
}

package models

// User is the authenticated organizer. Session management lives upstream;
// we only ever read this from GET /current-user.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// CurrentUserEnvelope matches the backend's { "user": { ... } } wrapper.
type CurrentUserEnvelope struct {
	User User `json:"user"`
}

package chat

// AnonymousToken is the sentinel value denoting an unauthenticated session.
// The backend resolves it to the default user.
const AnonymousToken = "__default__"

// Session identifies the current client against the backend. It is replaced
// wholesale on login and logout, never partially mutated.
type Session struct {
	Token  string
	UserID *int64
}

// Anonymous returns the unauthenticated sentinel session.
func Anonymous() Session {
	return Session{Token: AnonymousToken}
}

// IsAnonymous reports whether the session carries no real credential.
func (s Session) IsAnonymous() bool {
	return s.Token == "" || s.Token == AnonymousToken
}

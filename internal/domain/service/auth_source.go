package service

// AuthState is delivered by an AuthSource whenever authentication resolves.
type AuthState struct {
	UserID        string
	Authenticated bool
}

type AuthSource interface {
	OnAuthStateChanged(fn func(AuthState)) (unsubscribe func())
}

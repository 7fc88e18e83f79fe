package repository

// Unsubscribe stops a live subscription. It is safe to call more than once.
type Unsubscribe func()

package model

// ValidationError is returned when the caller supplies invalid input. It is
// raised before any ledger call is made.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

package domain

import "github.com/rs/zerolog"

// SideEffect is the outcome of a best-effort call (notification, audit entry,
// invite revocation). Callers inspect or log it; it is never returned as an error.
type SideEffect struct {
	Name string
	Err  error
}

func Done(name string, err error) SideEffect { return SideEffect{Name: name, Err: err} }

func (s SideEffect) OK() bool { return s.Err == nil }

// Log writes failed outcomes at warn level and returns s for chaining.
func (s SideEffect) Log(l *zerolog.Logger) SideEffect {
	if s.Err != nil && l != nil {
		l.Warn().Err(s.Err).Str("side_effect", s.Name).Msg("best-effort call failed")
	}
	return s
}

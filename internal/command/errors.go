package command

import "errors"

// Sentinel errors for the command graph and registry, matching spec.md's
// error taxonomy (DuplicateName, UnknownName, MalformedGraph).
var (
	ErrDuplicateCommand = errors.New("command: already registered")
	ErrUnknownCommand   = errors.New("command: not registered")
	ErrMalformedGraph   = errors.New("command: malformed graph")
)

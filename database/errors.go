package database

import "errors"

// Domain errors surfaced by the graph handlers
var (
	// ErrDanglingReference indicates an edge referencing a missing node.
	ErrDanglingReference = errors.New("dangling edge reference")

	// ErrNodeNotFound indicates a lookup for a node that does not exist.
	ErrNodeNotFound = errors.New("node not found")

	// ErrCandidateNotAccepted indicates an attempt to commit a candidate
	// that has not passed validation.
	ErrCandidateNotAccepted = errors.New("candidate is not accepted")
)

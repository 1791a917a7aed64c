package domain

import "errors"

// ErrNotFound indicates the referenced board, card or action point does not
// exist.
var ErrNotFound = errors.New("not found")

// ErrUnauthorized indicates the acting user lacks authority for the operation,
// e.g. a non-facilitator deleting a board.
var ErrUnauthorized = errors.New("unauthorized")

// ErrUnavailable indicates the backing store rejected or failed the request.
// The underlying transport error is wrapped alongside it.
var ErrUnavailable = errors.New("storage unavailable")

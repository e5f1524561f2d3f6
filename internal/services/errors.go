package services

import "errors"

// ErrNotFound reports that a referenced entity does not exist. Handlers map
// it to a 404-style response instead of a server error.
var ErrNotFound = errors.New("not found")

package repository

import "errors"

// ErrDefaultBoard indicates an attempt to delete the protected default board.
var ErrDefaultBoard = errors.New("default board cannot be deleted")

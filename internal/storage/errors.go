package storage

import "errors"

var ErrDatabase = errors.New("database error")
var ErrPageNotFound = errors.New("page not found")
var ErrRunNotFound = errors.New("run not found")
var ErrInvalidTransition = errors.New("invalid page state transition")

package repository

import "errors"

var ErrNotFound = errors.New("row not found")

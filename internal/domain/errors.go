package domain

import "errors"

var ErrNotFound = errors.New("not found")
var ErrUnsafeName = errors.New("unsafe file name")

package application

import "errors"

// ErrInvalidPatch indicates a customization that touches an identity field.
var ErrInvalidPatch = errors.New("invalid rule patch")

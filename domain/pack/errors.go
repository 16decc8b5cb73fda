package pack

import "errors"

// Domain errors for package operations.
var (
	// ErrInvalidPack is returned when a package cannot be decoded or holds
	// invalid assets.
	ErrInvalidPack = errors.New("invalid prebuilt rule package")

	// ErrPackNotFound is returned when a source has no package at the
	// configured location.
	ErrPackNotFound = errors.New("prebuilt rule package not found")

	// ErrUnsupportedFormat is returned for asset files with an unknown extension.
	ErrUnsupportedFormat = errors.New("unsupported asset file format")

	// ErrUnsupportedWatch is returned by sources that cannot be watched.
	ErrUnsupportedWatch = errors.New("package source does not support watching")
)

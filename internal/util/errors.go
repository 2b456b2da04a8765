package util

import "errors"

var (
	ErrNoExtractableText = errors.New("no extractable text found in PDF")
	ErrMissingFile       = errors.New("source file not found")
	ErrModelUnavailable  = errors.New("no model candidate available")
)

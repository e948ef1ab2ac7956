package handler

import "errors"

var (
	ErrFailedToDecodeRequestBody = errors.New("failed to decode request body")
	ErrNoSnapshot                = errors.New("no statistics snapshot recorded yet")
)

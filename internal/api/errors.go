package api

import "errors"

var (
	ErrAuthFailed  = errors.New("token rejected by API")
	ErrRateLimited = errors.New("rate limited by API")
)

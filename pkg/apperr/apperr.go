// Package apperr carries HTTP-mapped error types shared by the REST
// handlers and the recovery middleware.
package apperr

import "net/http"

// GenericError is an error that knows its HTTP status and code.
type GenericError interface {
	error
	ErrCode() string
	StatusCode() int
}

type ValidationError string

func (err ValidationError) Error() string {
	return string(err)
}

func (err ValidationError) ErrCode() string {
	return "VALIDATION_ERROR"
}

func (err ValidationError) StatusCode() int {
	return http.StatusBadRequest
}

type NotFoundError string

func (err NotFoundError) Error() string {
	return string(err)
}

func (err NotFoundError) ErrCode() string {
	return "NOT_FOUND_ERROR"
}

func (err NotFoundError) StatusCode() int {
	return http.StatusNotFound
}

type GoneError string

func (err GoneError) Error() string {
	return string(err)
}

func (err GoneError) ErrCode() string {
	return "GONE_ERROR"
}

func (err GoneError) StatusCode() int {
	return http.StatusGone
}

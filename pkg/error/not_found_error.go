package error

import "net/http"

// NotFoundError covers a job, post, task or connection the caller cannot see.
// Rows owned by another user are reported the same way.
type NotFoundError string

func (err NotFoundError) Error() string {
	return string(err)
}

func (err NotFoundError) ErrCode() string {
	return "NOT_FOUND"
}

func (err NotFoundError) StatusCode() int {
	return http.StatusNotFound
}

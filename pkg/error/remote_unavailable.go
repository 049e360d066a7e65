package error

import (
	"errors"
	"fmt"
	"net/http"
)

// RemoteUnavailable is returned by fetchers on any non-success transport outcome:
// timeout, non-2xx status, unreadable or malformed body.
type RemoteUnavailable struct {
	Ref    string
	Status int
	Err    error
}

func (err *RemoteUnavailable) Error() string {
	switch {
	case err.Status != 0:
		return fmt.Sprintf("remote unavailable: %s: status %d", err.Ref, err.Status)
	case err.Err != nil:
		return fmt.Sprintf("remote unavailable: %s: %v", err.Ref, err.Err)
	default:
		return "remote unavailable: " + err.Ref
	}
}

func (err *RemoteUnavailable) Unwrap() error {
	return err.Err
}

func (err *RemoteUnavailable) ErrCode() string {
	return "REMOTE_UNAVAILABLE"
}

func (err *RemoteUnavailable) StatusCode() int {
	return http.StatusBadGateway
}

func IsRemoteUnavailable(err error) bool {
	var ru *RemoteUnavailable
	return errors.As(err, &ru)
}

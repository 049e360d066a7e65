package error

import (
	"errors"
	"net/http"
)

// StorageFault means the persistent medium itself failed (unavailable, corrupt, out of space).
// It is the only cache error surfaced to facade callers.
type StorageFault struct {
	Op  string
	Err error
}

func NewStorageFault(op string, err error) *StorageFault {
	return &StorageFault{Op: op, Err: err}
}

func (err *StorageFault) Error() string {
	if err.Err == nil {
		return "storage fault: " + err.Op
	}
	return "storage fault: " + err.Op + ": " + err.Err.Error()
}

func (err *StorageFault) Unwrap() error {
	return err.Err
}

func (err *StorageFault) ErrCode() string {
	return "STORAGE_FAULT"
}

func (err *StorageFault) StatusCode() int {
	return http.StatusServiceUnavailable
}

// AsStorageFault wraps err as a StorageFault unless it already is one or is a NotFoundError.
func AsStorageFault(op string, err error) error {
	if err == nil {
		return nil
	}
	var sf *StorageFault
	if errors.As(err, &sf) || IsNotFound(err) {
		return err
	}
	return NewStorageFault(op, err)
}

func IsStorageFault(err error) bool {
	var sf *StorageFault
	return errors.As(err, &sf)
}

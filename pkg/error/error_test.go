package error

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsStorageFault(t *testing.T) {
	assert.NoError(t, AsStorageFault("put", nil))

	cause := errors.New("disk I/O error")
	err := AsStorageFault("put", cause)
	assert.True(t, IsStorageFault(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "storage fault: put: disk I/O error", err.Error())

	// Already classified errors pass through untouched.
	assert.Same(t, err, AsStorageFault("get", err))
	nf := NotFoundError("entry not found")
	assert.Equal(t, nf, AsStorageFault("get", nf))
	assert.False(t, IsStorageFault(AsStorageFault("get", nf)))
}

func TestRemoteUnavailable(t *testing.T) {
	err := fmt.Errorf("rehydrate: %w", &RemoteUnavailable{Ref: "https://x/y.png", Status: 404})
	assert.True(t, IsRemoteUnavailable(err))
	assert.Contains(t, err.Error(), "status 404")

	var generic GenericError = &RemoteUnavailable{Ref: "r"}
	assert.Equal(t, http.StatusBadGateway, generic.StatusCode())
	assert.Equal(t, "REMOTE_UNAVAILABLE", generic.ErrCode())
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", NotFoundError("nope"))))
	assert.False(t, IsNotFound(errors.New("nope")))
}

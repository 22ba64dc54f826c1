package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := E(FetchError, "thread.fetch", cause)

	assert.True(t, IsKind(err, FetchError))
	assert.False(t, IsKind(err, SendError))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "thread.fetch: connection refused", err.Error())

	wrapped := fmt.Errorf("view: %w", err)
	assert.True(t, IsKind(wrapped, FetchError))

	assert.Nil(t, E(SendError, "send", nil))
	assert.False(t, IsKind(cause, FetchError))
}

func TestKinds_NestedAppError(t *testing.T) {
	err := E(SendError, "messages.send", BadRequest("receiverId is required"))

	appErr, ok := AsAppError(err)
	assert.True(t, ok)
	assert.Equal(t, 400, appErr.Code)
	assert.True(t, IsKind(err, SendError))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, 401, StatusCode(E(FetchError, "thread.fetch", Unauthorized("expired"))))
	assert.Equal(t, 0, StatusCode(E(TransportError, "push.connect", stderrors.New("dial tcp: refused"))))
	assert.Equal(t, 0, StatusCode(nil))
}

package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesCode(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("save player: %w", TransactionFailure("store.save", cause))

	assert.True(t, errors.Is(err, ErrTransactionFailure))
	assert.False(t, errors.Is(err, ErrStorageUnavailable))
	assert.True(t, errors.Is(err, cause), "cause must stay reachable")
	assert.True(t, IsTransactionFailure(err))
	assert.Equal(t, CodeTransactionFailure, CodeOf(err))
}

func TestErrorMessage(t *testing.T) {
	err := NewError(CodeConnectionFailure, "peersync.connect", errors.New("eof"), "peer %s", "p1")
	assert.Equal(t, "peersync.connect: CONNECTION_FAILURE: peer p1: eof", err.Error())

	bare := &Error{Code: CodeDecryptionFailure}
	assert.Equal(t, "DECRYPTION_FAILURE", bare.Error())
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, IsStorageUnavailable(StorageUnavailable("open", nil)))
	assert.True(t, IsDecryptionFailure(DecryptionFailure("decrypt", nil)))
	assert.True(t, IsConnectionFailure(ConnectionFailure("connect", nil)))
	assert.True(t, IsProtocolParseError(ProtocolParseError("decode", nil)))
	assert.False(t, IsDecryptionFailure(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}

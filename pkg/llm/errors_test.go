package llm

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "connection",
			err:  &ConnectionError{Op: "generate", Err: errors.New("dial tcp: refused")},
			want: "llm: generate: connection failed: dial tcp: refused",
		},
		{
			name: "timeout",
			err:  &TimeoutError{Op: "generate", Timeout: 60 * time.Second},
			want: "llm: generate: timeout after 1m0s",
		},
		{
			name: "model not available",
			err:  &ModelNotAvailableError{Model: "qwen2.5:7b"},
			want: "llm: model not available: qwen2.5:7b",
		},
		{
			name: "generation with status",
			err:  &GenerationError{Status: 500, Msg: "overloaded"},
			want: "llm: generation failed (status 500): overloaded",
		},
		{
			name: "generation without status",
			err:  &GenerationError{Msg: "empty response from backend"},
			want: "llm: generation failed: empty response from backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestClassificationPredicates(t *testing.T) {
	connErr := &ConnectionError{Op: "generate", Err: errors.New("refused")}
	timeoutErr := &TimeoutError{Op: "generate", Timeout: time.Second}
	notAvailErr := &ModelNotAvailableError{Model: "m"}
	genErr := &GenerationError{Msg: "boom"}

	assert.True(t, IsConnection(connErr))
	assert.True(t, IsConnection(timeoutErr))
	assert.False(t, IsConnection(genErr))
	assert.False(t, IsConnection(notAvailErr))

	assert.True(t, IsTimeout(timeoutErr))
	assert.False(t, IsTimeout(connErr))

	assert.True(t, IsModelNotAvailable(notAvailErr))
	assert.False(t, IsModelNotAvailable(genErr))
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("attempt 3: %w", &TimeoutError{Op: "generate", Timeout: time.Second})
	assert.True(t, IsTimeout(wrapped))
	assert.True(t, IsConnection(wrapped))

	cause := errors.New("dial tcp: refused")
	assert.True(t, errors.Is(&ConnectionError{Op: "generate", Err: cause}, cause))
}

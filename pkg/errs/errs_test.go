package errs_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/credcheck/pkg/errs"
)

func TestClassifyTaskErrorDetectsDeadline(t *testing.T) {
	wrapped := fmt.Errorf("navigate: %w", context.DeadlineExceeded)
	require.Equal(t, errs.TaskTimeout, errs.ClassifyTaskError(wrapped))
}

func TestClassifyTaskErrorDefaultsToProtocolError(t *testing.T) {
	require.Equal(t, errs.ProtocolError, errs.ClassifyTaskError(errors.New("unexpected status 500")))
}

func TestIsFatalStoreIgnoresTimeouts(t *testing.T) {
	require.False(t, errs.IsFatalStore(errors.New("command timeout")))
	require.True(t, errs.IsFatalStore(errors.New("connection refused")))
	require.False(t, errs.IsFatalStore(nil))
}

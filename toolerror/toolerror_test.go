package toolerror_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hhyun1051/teamh-orchestrator/toolerror"
)

func TestNewDefaultsMessageWhenEmpty(t *testing.T) {
	te := toolerror.New("")
	assert.Equal(t, "tool error", te.Error())
}

func TestNewWithCauseWrapsAndUnwraps(t *testing.T) {
	root := errors.New("boom")
	te := toolerror.NewWithCause("invoking tool", root)

	require.Error(t, te)
	assert.Equal(t, "invoking tool", te.Error())
	assert.Equal(t, "boom", te.Unwrap().Error())
}

func TestFromErrorPreservesExistingChain(t *testing.T) {
	original := toolerror.Classified("rate limited", toolerror.ReasonTransient)
	got := toolerror.FromError(original)
	assert.Same(t, original, got)
}

func TestRetryableFollowsClassifiedCause(t *testing.T) {
	transient := toolerror.Classified("upstream timeout", toolerror.ReasonTransient)
	wrapped := toolerror.NewWithCause("tool invocation failed", transient)
	assert.True(t, wrapped.Retryable())

	denied := toolerror.Denied("operator rejected the call")
	assert.False(t, denied.Retryable())

	unclassified := toolerror.New("unknown failure")
	assert.False(t, unclassified.Retryable())
}

func TestErrorsAsMatchesToolErrorChain(t *testing.T) {
	te := toolerror.NewWithCause("outer", toolerror.Classified("inner", toolerror.ReasonMissingFields))

	var target *toolerror.ToolError
	require.True(t, errors.As(te, &target))
	assert.Equal(t, "outer", target.Error())
}

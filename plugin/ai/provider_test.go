package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/hearthfire/cookforge/internal/errors"
)

func retryProvider(t *testing.T, timeout time.Duration) *Provider {
	t.Helper()
	p, err := NewProvider(&Config{MaxRetries: 2, Timeout: timeout})
	require.NoError(t, err)
	return p
}

func TestDoWithRetryReportsTimeout(t *testing.T) {
	p := retryProvider(t, 5*time.Millisecond)

	err := p.doWithRetry(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeTimeout))
}

func TestDoWithRetryReportsUnavailable(t *testing.T) {
	p := retryProvider(t, time.Second)

	attempts := 0
	err := p.doWithRetry(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("upstream broke")
	})
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeLLMUnavailable))
	assert.Equal(t, 2, attempts)
}

func TestDoWithRetryStopsOnCanceledContext(t *testing.T) {
	p := retryProvider(t, time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := p.doWithRetry(ctx, func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("upstream broke")
	})
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeContextCanceled))
	assert.Equal(t, 1, attempts)
}

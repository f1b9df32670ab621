package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/civicwatch/portal/internal/errors"
)

type customError struct{}

func (*customError) Error() string { return "custom" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "app error", err: apperrors.Blocked("user is blocked"), want: "blocked"},
		{name: "wrapped app error", err: fmt.Errorf("fetch role: %w", apperrors.Wrap(errors.New("dial"), apperrors.ErrCodeNetwork, "backend unreachable")), want: "network"},
		{name: "plain error", err: errors.New("boom"), want: "errors_errorstring"},
		{name: "innermost type wins", err: fmt.Errorf("outer: %w", &customError{}), want: "errors_customerror"},
		{name: "context deadline", err: fmt.Errorf("fetch role: %w", context.DeadlineExceeded), want: "timeout"},
		{name: "context canceled", err: context.Canceled, want: "canceled"},
		{name: "dial failure", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, want: "network"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

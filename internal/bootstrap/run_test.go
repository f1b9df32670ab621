package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_RequiresServerAndRuntime(t *testing.T) {
	assert.Error(t, Run(context.Background(), RunConfig{}))
}

func TestNewHTTPServer_RequiresRuntime(t *testing.T) {
	_, err := NewHTTPServer(HTTPServerConfig{})
	assert.Error(t, err)
}

package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthChecks_NoBackends(t *testing.T) {
	var nilInfra *Infrastructure
	assert.Nil(t, nilInfra.HealthChecks())
	assert.Empty(t, (&Infrastructure{}).HealthChecks())
}

func TestNewHealthCheck(t *testing.T) {
	down := errors.New("connection refused")
	hc := NewHealthCheck("redis", func(context.Context) error { return down })
	assert.Equal(t, "redis", hc.Name())
	assert.ErrorIs(t, hc.Check(context.Background()), down)
}

//Personal.AI order the ending

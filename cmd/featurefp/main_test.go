package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shortontech/featurefp/internal/metrics"
	"github.com/shortontech/featurefp/pkg/config"
	"github.com/shortontech/featurefp/pkg/logger"
)

func TestRunRejectsUnknownOutput(t *testing.T) {
	cfg := config.Config{ServerAddr: "127.0.0.1:0", Outputs: []string{"postgres"}}
	err := run(context.Background(), cfg, metrics.Config{}, logger.Nop())
	assert.ErrorContains(t, err, "unknown output")
}

func TestRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	cfg := config.Config{ServerAddr: "127.0.0.1:0", Outputs: []string{"log"}, MaxBodyBytes: 1024}
	assert.NoError(t, run(ctx, cfg, metrics.Config{}, logger.Nop()))
}

package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortontech/featurefp/internal/event"
	"github.com/shortontech/featurefp/internal/probe"
	"github.com/shortontech/featurefp/internal/report"
	"github.com/shortontech/featurefp/pkg/logger"
)

func TestSampleEnvironmentsProduceValidReports(t *testing.T) {
	plan := probe.DefaultPlan()
	envs := sampleEnvironments(plan)
	require.Len(t, envs, 3)

	for _, env := range envs {
		rep := probe.Collect(plan, env)
		assert.Equal(t, plan.Catalog.Len(), len(rep.Features))

		data, err := json.Marshal(rep)
		require.NoError(t, err)
		back, err := report.DecodeFeatureReport(data)
		require.NoError(t, err, env.URL)
		assert.Equal(t, env.URL, back.VisitedURL)
	}

	headless := probe.Collect(plan, envs[1])
	v, ok := headless.Probe("webdriver")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	bare := probe.Collect(plan, envs[2])
	v, _ = bare.Probe("client_ua")
	assert.Equal(t, "", v)
}

func TestRunTestModeEmitsAll(t *testing.T) {
	var got []event.Event
	runTestMode(context.Background(), probe.DefaultPlan(), func(e event.Event) { got = append(got, e) }, logger.Nop())

	require.Len(t, got, 4)
	assert.Equal(t, event.MethodEngine, got[3].Method)
	assert.Equal(t, "Chrome", got[0].Server.ParsedUA.Browser)
	for _, e := range got[:3] {
		assert.Equal(t, event.MethodFeature, e.Method)
		assert.True(t, e.CatalogKnown)
	}
}

func TestRunTestModeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var n int
	runTestMode(ctx, probe.DefaultPlan(), func(event.Event) { n++ }, logger.Nop())
	assert.Zero(t, n)
}

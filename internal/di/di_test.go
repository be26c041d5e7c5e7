package di

import (
	"context"
	"testing"
	"time"

	internalrepo "FinPolicy/internal/repository"
	"FinPolicy/pkg/config"
	"FinPolicy/pkg/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAppWithLocalBackends(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Storage.Root = t.TempDir()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Registry.SkipPreload = true
	cfg.Log.Level = "error"

	app, err := InitializeApp(cfg)
	require.NoError(t, err)
	require.NotNil(t, app.Registry())
	require.NotNil(t, app.Scheduler())

	app.DisableScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not shut down")
	}
}

func TestOptionalProvidersStayNil(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)

	p, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	assert.Nil(t, p)

	ch, err := ProvideClickHouse(cfg)
	require.NoError(t, err)
	assert.Nil(t, ch)

	rc, err := ProvideRedis(cfg)
	require.NoError(t, err)
	assert.Nil(t, rc)

	db, err := ProvidePostgres(cfg)
	require.NoError(t, err)
	assert.Nil(t, db)

	idx, err := ProvideModelIndex(nil)
	require.NoError(t, err)
	assert.Nil(t, idx)

	assert.Nil(t, ProvideTrainingSink(nil))
	assert.Nil(t, ProvidePredictionPipeline(cfg, nil, nil, nil))
	assert.IsType(t, &internalrepo.LogPredictionLog{}, ProvidePredictionLog(nil, nil))
	assert.NotNil(t, ProvideSampleStore(nil, nil))
	assert.Empty(t, readinessChecks(&server.Resources{}))
}

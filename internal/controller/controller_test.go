package controller

import (
	"context"
	"testing"
	"time"

	"github.com/ChuLiYu/beaver-queue/internal/clock"
	"github.com/ChuLiYu/beaver-queue/internal/registry"
	"github.com/ChuLiYu/beaver-queue/internal/store/local"
	"github.com/ChuLiYu/beaver-queue/pkg/serializer"
	"github.com/ChuLiYu/beaver-queue/pkg/job"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoHandler struct{}

func (echoHandler) Handle(ctx *registry.Context, req string) (string, *job.Error) {
	upper := make([]byte, len(req))
	for i := 0; i < len(req); i++ {
		c := req[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper[i] = c
	}
	return string(upper), nil
}

func testConfig() Config {
	return Config{
		WorkerID:              uuid.New(),
		MaximumConcurrency:    2,
		MaximumQueueSize:      10,
		PollingInterval:       5 * time.Millisecond,
		BatchSize:             5,
		JobTimeout:            time.Second,
		DefaultMaxRetries:     0,
		RetryDelayBaseSeconds: 0.01,
	}
}

func TestControllerHappyPath(t *testing.T) {
	ser := serializer.New()
	reg := registry.New()
	require.NoError(t, registry.RegisterWithBody[string, string](reg, "echo", echoHandler{}, ser))

	st := local.New(clock.New())
	c := New(testConfig(), st, reg, clock.New(), nil)
	require.NoError(t, c.Start())
	defer c.Stop()

	payload, err := ser.Marshal("hello")
	require.NoError(t, err)

	submitted, err := c.Submit(context.Background(), "echo", payload, job.Snapshot{}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, err := c.GetJob(context.Background(), submitted.ID)
		return err == nil && j.Status == job.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	final, err := c.GetJob(context.Background(), submitted.ID)
	require.NoError(t, err)

	var result string
	require.NoError(t, ser.Unmarshal(final.Result, &result))
	assert.Equal(t, "HELLO", result)
	assert.True(t, final.CompletedAt.After(*final.StartedAt) || final.CompletedAt.Equal(*final.StartedAt))
}

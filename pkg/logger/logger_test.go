package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	t.Run("invalid level", func(t *testing.T) {
		err := Init(Config{Level: "loud"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("defaults", func(t *testing.T) {
		require.NoError(t, Init(Config{}))
		assert.NotNil(t, Get())
	})
}

func TestContextFields(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))

	ctx := context.WithValue(context.Background(), CampaignKey, "5")
	ctx = context.WithValue(ctx, RunIDKey, "run-2")
	fields := ContextFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "run_id", fields[0].Key)
	assert.Equal(t, "campaign_id", fields[1].Key)
}

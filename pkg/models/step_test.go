package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/orchestrator/pkg/models"
)

func TestStep_EffectiveRetryDelay(t *testing.T) {
	t.Run("omitted defaults to 5s", func(t *testing.T) {
		var s models.Step
		require.NoError(t, json.Unmarshal([]byte(`{"name":"a","reference":"a"}`), &s))
		assert.Equal(t, 5, s.EffectiveRetryDelay())
	})

	t.Run("explicit zero means no delay", func(t *testing.T) {
		var s models.Step
		require.NoError(t, json.Unmarshal([]byte(`{"name":"a","reference":"a","retry_delay":0}`), &s))
		assert.Equal(t, 0, s.EffectiveRetryDelay())
	})

	t.Run("explicit positive value is honored", func(t *testing.T) {
		var s models.Step
		require.NoError(t, json.Unmarshal([]byte(`{"name":"a","reference":"a","retry_delay":30}`), &s))
		assert.Equal(t, 30, s.EffectiveRetryDelay())
	})
}

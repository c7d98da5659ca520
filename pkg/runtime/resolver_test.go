package runtime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/orchestrator/pkg/runtime"
)

func TestResolve_ExactMatch(t *testing.T) {
	reg, err := runtime.Load("../../fixtures/manifest/runtimes.json")
	require.NoError(t, err)
	assert.Equal(t, "/bin/sh", reg.Resolve("sh", "ci"))
}

func TestResolve_FallsBackToDefault(t *testing.T) {
	reg, err := runtime.Load("../../fixtures/manifest/runtimes.json")
	require.NoError(t, err)
	assert.Equal(t, "sh", reg.Resolve("sh", "staging"))
}

func TestResolve_EmptyEnvMeansDefault(t *testing.T) {
	reg, err := runtime.Load("../../fixtures/manifest/runtimes.json")
	require.NoError(t, err)
	assert.Equal(t, "sh", reg.Resolve("sh", ""))
}

func TestResolve_UnknownRuntimeDegradesToLiteral(t *testing.T) {
	reg, err := runtime.Load("../../fixtures/manifest/runtimes.json")
	require.NoError(t, err)
	assert.Equal(t, "python3", reg.Resolve("python3", "default"))
}

func TestLoad_MissingFileIsNotFatal(t *testing.T) {
	reg, err := runtime.Load("../../fixtures/manifest/does_not_exist.json")
	require.NoError(t, err)
	assert.Equal(t, "bash", reg.Resolve("bash", "default"))
}

func TestLoad_EmptyPathIsNotFatal(t *testing.T) {
	reg, err := runtime.Load("")
	require.NoError(t, err)
	assert.Equal(t, "bash", reg.Resolve("bash", "default"))
}

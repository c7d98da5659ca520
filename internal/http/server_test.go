package http_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	internalhttp "github.com/flowcraft/orchestrator/internal/http"
	"github.com/flowcraft/orchestrator/internal/log"
	"github.com/flowcraft/orchestrator/internal/service"
	"github.com/flowcraft/orchestrator/pkg/manifest"
	"github.com/flowcraft/orchestrator/pkg/runtime"
	"github.com/flowcraft/orchestrator/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	reg, err := manifest.Load("../../fixtures/manifest/manifest.json", log.NoopLogger{})
	require.NoError(t, err)
	runtimes, err := runtime.Load("")
	require.NoError(t, err)
	store, err := storage.NewFileStore("")
	require.NoError(t, err)

	eng := service.New(reg, runtimes, store, log.NoopLogger{})
	return httptest.NewServer(internalhttp.NewMux(eng))
}

func TestE2EServer(t *testing.T) {
	t.Run("HealthCheck", func(t *testing.T) {
		srv := newTestServer(t)
		defer srv.Close()

		resp, err := srv.Client().Get(srv.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "engine is running", string(body))
	})

	t.Run("RunJob", func(t *testing.T) {
		srv := newTestServer(t)
		defer srv.Close()

		resp, err := srv.Client().Post(srv.URL+"/jobs/run?name=nightly_report", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var payload struct {
			ExecutionID string         `json:"execution_id"`
			Output      map[string]any `json:"output"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.NotEmpty(t, payload.ExecutionID)
	})

	t.Run("RunJobMissingName", func(t *testing.T) {
		srv := newTestServer(t)
		defer srv.Close()

		resp, err := srv.Client().Post(srv.URL+"/jobs/run", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("RunJobThenGetExecution", func(t *testing.T) {
		srv := newTestServer(t)
		defer srv.Close()

		resp, err := srv.Client().Post(srv.URL+"/jobs/run?name=nightly_report", "application/json", nil)
		require.NoError(t, err)
		var payload struct {
			ExecutionID string `json:"execution_id"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		resp.Body.Close()

		resp, err = srv.Client().Get(fmt.Sprintf("%s/executions/%s", srv.URL, payload.ExecutionID))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var records []map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
		assert.NotEmpty(t, records)
	})

	t.Run("ListExecutionsFilteredByType", func(t *testing.T) {
		srv := newTestServer(t)
		defer srv.Close()

		resp, err := srv.Client().Post(srv.URL+"/jobs/run?name=nightly_report", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()

		resp, err = srv.Client().Get(srv.URL + "/executions?type=job")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var records []map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
		require.NotEmpty(t, records)
		assert.Equal(t, "job", records[0]["type"])
	})
}

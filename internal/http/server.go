package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/flowcraft/orchestrator/internal/log"
	"github.com/flowcraft/orchestrator/internal/service"
	"github.com/flowcraft/orchestrator/pkg/query"
)

// StartServer serves the engine's query surface and a trigger endpoint
// over HTTP, adapted from the teacher's minimal health/workflows server.
func StartServer(port string, eng *service.Engine) error {
	log.GetLogger().Infof("Starting engine server on :%s", port)
	return http.ListenAndServe(":"+port, NewMux(eng))
}

// NewMux builds the engine's HTTP routes without binding a listener, so
// tests can drive it through httptest.NewServer.
func NewMux(eng *service.Engine) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/jobs/run", runJobHandler(eng))
	mux.HandleFunc("/executions", listExecutionsHandler(eng))
	mux.HandleFunc("/executions/", getExecutionHandler(eng))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, "engine is running")
}

func runJobHandler(eng *service.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			http.Error(w, "missing 'name' query parameter", http.StatusBadRequest)
			return
		}
		var params map[string]any
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
				http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
				return
			}
		}
		execID, output, err := eng.RunJob(context.Background(), name, params, r.URL.Query().Get("trigger"))
		if err != nil {
			log.GetLogger().Errorf("run job %s: %v", name, err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"execution_id": execID, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"execution_id": execID, "output": output})
	}
}

func listExecutionsHandler(eng *service.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := query.Filter{
			Status: q.Get("status"),
			Type:   q.Get("type"),
			Name:   q.Get("name"),
			SortBy: q.Get("sortBy"),
		}
		if top := q.Get("top"); top != "" {
			if n, err := strconv.Atoi(top); err == nil {
				filter.Top = n
			}
		}
		records, err := eng.ListExecutions(filter)
		if err != nil {
			http.Error(w, fmt.Sprintf("list executions: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func getExecutionHandler(eng *service.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/executions/"):]
		if id == "" {
			http.Error(w, "missing execution id", http.StatusBadRequest)
			return
		}
		records, err := eng.GetExecution(id)
		if err != nil {
			http.Error(w, fmt.Sprintf("get execution: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

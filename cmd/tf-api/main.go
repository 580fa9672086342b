package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TraceForge/internal/audit"
	"TraceForge/internal/config"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Storage.SQLitePath == "" {
		log.Fatal("No audit store configured (storage.sqlite_path). API server cannot start.")
	}

	store, err := audit.Open(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to open audit store: %v", err)
	}

	r := mux.NewRouter()
	apiHandler := &APIHandler{store: store}
	r.HandleFunc("/api/v1/runs", apiHandler.listRunsHandler).Methods("GET")
	r.HandleFunc("/api/v1/runs/{id}/summary", apiHandler.runSummaryHandler).Methods("GET")
	r.HandleFunc("/api/v1/runs/{id}/decisions", apiHandler.runDecisionsHandler).Methods("GET")

	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("API server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("API server exited.")
}

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	store *audit.Store
}

// listRunsHandler returns every labeling run the store knows about.
func (h *APIHandler) listRunsHandler(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.Runs()
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list runs: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

// runSummaryHandler returns the stored summary report for one run.
func (h *APIHandler) runSummaryHandler(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	run, err := h.store.RunByID(runID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, fmt.Sprintf("run %s not found", runID), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to load run: %v", err), http.StatusInternalServerError)
		return
	}

	// Summary is stored as already-encoded JSON; pass it through untouched.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(run.Summary))
}

// runDecisionsHandler returns one run's full reconciliation decision trail.
func (h *APIHandler) runDecisionsHandler(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	decisions, err := h.store.DecisionsForRun(runID)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to load decisions: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, decisions)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(jsonBytes)
}

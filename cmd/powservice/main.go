package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cuemby/credcheck/pkg/log"
	"github.com/cuemby/credcheck/pkg/pow"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "powservice",
	Short:   "Standalone proof-of-work solver service",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"powservice version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.Flags().String("addr", ":8090", "listen address")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "output logs as JSON")
}

func run(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	level, _ := cmd.Flags().GetString("log-level")
	jsonOut, _ := cmd.Flags().GetBool("log-json")

	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
	logger := log.WithComponent("powservice")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/compute", handleCompute(logger))

	logger.Info().Str("addr", addr).Msg("powservice listening")
	return http.ListenAndServe(addr, mux)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type computeRequest struct {
	Mask string `json:"mask"`
	Key  string `json:"key"`
	Seed int64  `json:"seed"`
}

type computeResponse struct {
	Cres string `json:"cres"`
}

func handleCompute(logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req computeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		cres, err := pow.Solve(req.Mask, req.Key, req.Seed)
		if err != nil {
			logger.Warn().Err(err).Str("mask", req.Mask).Msg("pow solve failed")
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(computeResponse{Cres: cres})
	}
}

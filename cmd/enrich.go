package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/enrichment-worker/internal/model"
)

var enrichFile string

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run one enrichment batch from a JSON or YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		req, err := loadBatch(enrichFile)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.EnsureJob(ctx, req.JobID, req.SearchID, len(req.Businesses)); err != nil {
			return eris.Wrap(err, "enrich: ensure job")
		}

		job := env.Coordinator.Run(ctx, req)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(job); err != nil {
			return eris.Wrap(err, "enrich: write summary")
		}

		if job.Status == model.JobStatusFailed {
			return eris.Errorf("enrich: job %d failed: %s", job.ID, job.Error)
		}
		return nil
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichFile, "file", "", "batch file (.json, .yaml or .yml)")
	_ = enrichCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(enrichCmd)
}

// loadBatch reads and validates an enrichment request. The format follows
// the file extension.
func loadBatch(path string) (model.EnrichRequest, error) {
	var req model.EnrichRequest

	data, err := os.ReadFile(path)
	if err != nil {
		return req, eris.Wrap(err, "enrich: read batch file")
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &req)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &req)
	default:
		return req, eris.Errorf("enrich: unsupported batch file extension %q", ext)
	}
	if err != nil {
		return req, eris.Wrapf(err, "enrich: decode %s", filepath.Base(path))
	}

	if err := req.Validate(); err != nil {
		return req, eris.Wrap(err, "enrich: invalid batch")
	}
	return req, nil
}

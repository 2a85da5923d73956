package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stemsi/survey-backend/internal/config"
	"github.com/stemsi/survey-backend/internal/database"
	"github.com/stemsi/survey-backend/internal/logger"
	"github.com/stemsi/survey-backend/internal/metrics"
	"github.com/stemsi/survey-backend/internal/repository"
	"github.com/stemsi/survey-backend/internal/service"
)

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Store survey definitions in the database",
	Long: `Import lints each definition and stores it under its form id, replacing
the cached copy. The form id defaults to the file name without extension.
Definitions with lint errors are not stored.

Database and Redis settings come from the same environment as the server
(DATABASE_URL, REDIS_URL, .env).

Examples:
  surveyctl import surveys/*.yaml
  surveyctl import audit.json --form-id store-audit-v2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formID, _ := cmd.Flags().GetString("form-id")
		if formID != "" && len(args) > 1 {
			return errors.New("--form-id needs exactly one file")
		}

		cfg := config.Load()
		log := logger.New(os.Stderr, cfg.LogLevel, "pretty")

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer pool.Close()
		rdb, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer rdb.Close()

		surveys := service.NewSurveyService(repository.NewSurveyRepository(pool), rdb, cfg.SurveyCacheTTL, metrics.Nop(), log)

		failed := 0
		for _, path := range args {
			id := formID
			if id == "" {
				id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}

			_, definition, err := readDefinition(path)
			if err != nil {
				log.Error().Err(err).Str("file", path).Msg("Skipped")
				failed++
				continue
			}
			rec, issues, err := surveys.Put(ctx, id, definition)
			if err != nil {
				_ = writeIssues(cmd.ErrOrStderr(), issues, "text")
				log.Error().Err(err).Str("file", path).Str("form_id", id).Msg("Import failed")
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s version %d (%d warnings)\n", path, rec.FormID, rec.Version, len(issues))
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d definitions failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().String("form-id", "", "Form id to store a single definition under")
}

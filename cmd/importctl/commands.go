package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pharmacy-service/internal/config"
	"pharmacy-service/internal/events"
	"pharmacy-service/internal/importer"
	"pharmacy-service/internal/models"
	"pharmacy-service/internal/repository"
)

func newTemplateCmd() *cobra.Command {
	var format, outPath string

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write the inventory import template",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", outPath, err)
				}
				defer f.Close()
				out = f
			}

			tpl := importer.InventoryImportTemplate()
			switch strings.ToLower(format) {
			case "csv":
				return importer.WriteCSVTemplate(out, tpl)
			case "xlsx":
				if outPath == "" {
					return errors.New("xlsx templates need --out")
				}
				return importer.WriteXLSXTemplate(out, tpl)
			default:
				return fmt.Errorf("unknown --format %q (want csv or xlsx)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "csv", "Template format: csv or xlsx")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default: stdout, csv only)")
	return cmd
}

func newValidateCmd(logger func() *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Parse and validate a file without writing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			im := importer.New(nil, importer.Config{}, logger())
			report, err := im.Run(cmd.Context(), importer.RunRequest{
				FileName:     filepath.Base(args[0]),
				File:         f,
				ValidateOnly: true,
			})
			if err != nil {
				return err
			}

			printReport(cmd.OutOrStdout(), report)
			if !report.Success {
				return fmt.Errorf("%d of %d rows have errors", report.SkippedCount, report.TotalRows)
			}
			return nil
		},
	}
}

func newImportCmd(logger func() *logrus.Logger) *cobra.Command {
	var pharmacyID, actor string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a file into a pharmacy's inventory through the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logger()
			out := cmd.OutOrStdout()

			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			redisClient := config.InitRedis(cfg)
			if redisClient != nil {
				defer redisClient.Close()
			}

			repo, closeStore, err := repository.Open(ctx, cfg, redisClient, log)
			if err != nil {
				return err
			}
			defer closeStore()

			var hooks []importer.CompletionHook
			if cfg.NATSURL != "" {
				publisher, err := events.NewStockEventPublisher(cfg.NATSURL, log)
				if err != nil {
					log.WithError(err).Warn("Continuing without event publishing")
				} else {
					defer publisher.Close()
					hooks = append(hooks, publisher)
				}
			}

			im := importer.New(repo, importer.Config{BatchSize: cfg.ImportBatchSize}, log, hooks...)
			report, err := im.Run(ctx, importer.RunRequest{
				PharmacyID: pharmacyID,
				Actor:      actor,
				FileName:   filepath.Base(args[0]),
				File:       f,
				Progress: func(p models.ImportProgress) {
					fmt.Fprintf(out, "imported %d/%d\n", p.Imported, p.Total)
				},
			})
			if report != nil {
				printReport(out, report)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&pharmacyID, "pharmacy", "", "Pharmacy ID to import into (required)")
	cmd.Flags().StringVar(&actor, "actor", "", "User recorded as the importer")
	_ = cmd.MarkFlagRequired("pharmacy")
	return cmd
}

func printReport(w io.Writer, report *models.ImportReport) {
	fmt.Fprintf(w, "rows: %d  valid: %d  skipped: %d", report.TotalRows, report.ValidRows, report.SkippedCount)
	if !report.ValidateOnly {
		fmt.Fprintf(w, "  imported: %d  batches: %d", report.Imported, report.Batches)
	}
	fmt.Fprintln(w)

	for _, e := range report.Errors {
		fmt.Fprintf(w, "  row %d (%s): %s\n", e.Row, e.Name, strings.Join(e.Messages, "; "))
	}
	if report.Failure != "" {
		fmt.Fprintf(w, "import failed: %s\n", report.Failure)
	}
}

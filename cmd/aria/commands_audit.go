package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ariarun/aria/internal/config"
	"github.com/ariarun/aria/internal/scrub"
	"github.com/ariarun/aria/internal/store"
)

func buildAuditCmd(manifestsDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the hash-chained audit trail",
	}
	cmd.AddCommand(
		buildAuditListCmd(),
		buildAuditExportCmd(),
		buildAuditVerifyCmd(),
	)
	return cmd
}

func openAuditStore() (*store.Store, *config.Config, error) {
	if err := config.LoadEnvFile(".env"); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	s, sErr := store.Open(cfg.DBPath, scrub.New([]string{cfg.AnthropicAPIKey}))
	if sErr != nil {
		return nil, nil, sErr
	}
	return s, cfg, nil
}

func buildAuditListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent audit records across all sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openAuditStore()
			if err != nil {
				return exitErr(exitUserError, err)
			}
			defer s.Close()

			records, lErr := s.List(limit)
			if lErr != nil {
				return exitErr(exitUserError, lErr)
			}
			out := cmd.OutOrStdout()
			for _, r := range records {
				fmt.Fprintf(out, "%s\t%d\t%s\t%s\n", r.SessionID, r.Seq, r.Kind, r.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of records to return")
	return cmd
}

func buildAuditExportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export one session's audit chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openAuditStore()
			if err != nil {
				return exitErr(exitUserError, err)
			}
			defer s.Close()

			var ef store.ExportFormat
			switch format {
			case "json":
				ef = store.ExportJSON
			case "text":
				ef = store.ExportText
			default:
				return exitErr(exitUserError, fmt.Errorf("unknown format %q: must be json or text", format))
			}

			data, eErr := s.Export(args[0], ef)
			if eErr != nil {
				return exitErr(exitUserError, eErr)
			}
			_, _ = cmd.OutOrStdout().Write(data)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "export format: json or text")
	return cmd
}

func buildAuditVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <session-id>",
		Short: "Verify a session's audit chain hash linkage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openAuditStore()
			if err != nil {
				return exitErr(exitUserError, err)
			}
			defer s.Close()

			result, vErr := s.Verify(args[0])
			if vErr != nil {
				return exitErr(exitUserError, vErr)
			}
			if result.Ok {
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			}
			return exitErr(exitToolFailure, fmt.Errorf("chain broken at seq %d", result.BrokenAt))
		},
	}
}

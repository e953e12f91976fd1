package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/haccp/internal/backup"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Run backups and inspect the backup log",
}

var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Back up every configured document type now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return printOutcome(a.srv.Orchestrator().RunManual(cmd.Context()))
	},
}

var backupDocumentCmd = &cobra.Command{
	Use:   "document <type>",
	Short: "Back up a single document type",
	Long: "haccpctl backup document <type>\n\n" +
		"Backs up one document type using its saved structure. --spreadsheet and\n" +
		"--sheet override the target for this run only.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spreadsheet, _ := cmd.Flags().GetString("spreadsheet")
		sheet, _ := cmd.Flags().GetString("sheet")

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return printOutcome(a.srv.Orchestrator().RunDocument(cmd.Context(), args[0], spreadsheet, sheet))
	},
}

var backupLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List recent backup runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.srv.Stores().Logs.List(limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No backup runs yet.")
			return nil
		}

		fmt.Printf("%-38s  %-10s  %-9s  %-8s  %s\n", "RUN ID", "TRIGGER", "STATUS", "RECORDS", "STARTED")
		fmt.Println(strings.Repeat("-", 96))
		for _, e := range entries {
			fmt.Printf("%-38s  %-10s  %-9s  %-8d  %s\n", e.ID, e.Trigger, e.Status, e.RecordCount,
				e.StartedAt.Local().Format(time.DateTime))
			if e.Error != "" {
				fmt.Printf("    %s\n", e.Error)
			}
		}
		return nil
	},
}

func init() {
	backupDocumentCmd.Flags().String("spreadsheet", "", "Spreadsheet ID for this run")
	backupDocumentCmd.Flags().String("sheet", "", "Sheet name for this run")
	backupLogsCmd.Flags().Int("limit", 20, "Number of runs to show")

	backupCmd.AddCommand(backupRunCmd)
	backupCmd.AddCommand(backupDocumentCmd)
	backupCmd.AddCommand(backupLogsCmd)
}

func printOutcome(out backup.Outcome) error {
	if out.Data == nil {
		if out.Error != nil {
			return errors.New(describe(out.Error))
		}
		return errors.New("backup did not start")
	}

	fmt.Printf("Run %s: %s, %d records\n", out.Data.LogID, out.Data.Status, out.Data.RecordCount)
	for _, r := range out.Data.Results {
		line := fmt.Sprintf("  %-20s %-8s %d records", r.DocumentType, r.Status, r.RecordCount)
		if r.Error != "" {
			line += "  " + r.Error
		}
		fmt.Println(line)
	}
	if !out.Success && out.Error != nil {
		return errors.New(describe(out.Error))
	}
	return nil
}

func describe(e *backup.ErrorInfo) string {
	if e.Hint == "" {
		return e.Message
	}
	return e.Message + "\n" + e.Hint
}

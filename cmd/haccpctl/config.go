package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/haccp/internal/credential"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the backup spreadsheet and service account",
}

var configImportCmd = &cobra.Command{
	Use:   "import <service-account.json>",
	Short: "Save a service account key and the target spreadsheet",
	Long: "haccpctl config import <file> --spreadsheet <id>\n\n" +
		"The file is the key JSON as downloaded from Google Cloud. It is validated\n" +
		"before it is saved. Without --spreadsheet the saved spreadsheet is kept.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spreadsheet, _ := cmd.Flags().GetString("spreadsheet")

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		cred, err := credential.Parse(string(raw))
		if err != nil {
			return err
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		configs := a.srv.Stores().Config
		if spreadsheet == "" {
			prev, err := configs.GetBackupConfig()
			if err != nil {
				return err
			}
			if prev == nil || prev.SpreadsheetID == "" {
				return errors.New("--spreadsheet is required when no spreadsheet is saved")
			}
			spreadsheet = prev.SpreadsheetID
		}

		if _, err := configs.SaveBackupConfig(spreadsheet, string(raw)); err != nil {
			return err
		}
		fmt.Printf("Saved service account %s for spreadsheet %s\n", cred.ClientEmail, spreadsheet)
		fmt.Println("Share the spreadsheet with that address as an editor.")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved backup configuration without the key",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		cfg, err := a.srv.Stores().Config.GetBackupConfig()
		if err != nil {
			return err
		}
		if cfg == nil {
			fmt.Println("Backup is not configured.")
			return nil
		}
		fmt.Printf("Spreadsheet:     %s\n", cfg.SpreadsheetID)
		if cred, err := credential.Parse(cfg.ServiceAccountJSON); err == nil {
			fmt.Printf("Service account: %s\n", cred.ClientEmail)
			fmt.Printf("Project:         %s\n", cred.ProjectID)
		} else {
			fmt.Printf("Service account: invalid (%v)\n", err)
		}
		fmt.Printf("Updated:         %s\n", cfg.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		return nil
	},
}

func init() {
	configImportCmd.Flags().String("spreadsheet", "", "Target spreadsheet ID")

	configCmd.AddCommand(configImportCmd)
	configCmd.AddCommand(configShowCmd)
}

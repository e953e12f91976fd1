package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/dukerupert/haccp/internal/document"
	"github.com/dukerupert/haccp/internal/model"
)

var structureCmd = &cobra.Command{
	Use:   "structure",
	Short: "Manage per document type backup structures",
}

var structureListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved backup structures",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.srv.Stores().Structures.List()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No structures saved. Backups use the CCP document on the default spreadsheet.")
			return nil
		}

		fmt.Printf("%-24s  %-8s  %-46s  %s\n", "DOCUMENT TYPE", "ENABLED", "SPREADSHEET", "SHEET")
		fmt.Println(strings.Repeat("-", 100))
		for _, st := range list {
			fmt.Printf("%-24s  %-8t  %-46s  %s\n", st.DocumentType, st.Enabled, st.SpreadsheetID, st.SheetName)
		}
		return nil
	},
}

var structureImportCmd = &cobra.Command{
	Use:   "import <structures.yaml>",
	Short: "Save backup structures from a YAML file",
	Long: "haccpctl structure import <file>\n\n" +
		"The file holds a list of structures:\n\n" +
		"  - documentType: ccp\n" +
		"    spreadsheetId: DEFAULT\n" +
		"    sheetName: CCP\n" +
		"    enabled: true\n" +
		"    fields: [process, measuredValue, status]\n\n" +
		"Every entry is validated before any is saved.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		structures, err := parseStructures(raw)
		if err != nil {
			return err
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, st := range structures {
			if err := a.srv.Stores().Structures.Save(st); err != nil {
				return err
			}
			fmt.Printf("Saved %s\n", st.DocumentType)
		}
		return nil
	},
}

func init() {
	structureCmd.AddCommand(structureListCmd)
	structureCmd.AddCommand(structureImportCmd)
}

// parseStructures decodes and validates a YAML list of structures.
func parseStructures(raw []byte) ([]model.BackupStructure, error) {
	var structures []model.BackupStructure
	if err := yaml.UnmarshalStrict(raw, &structures); err != nil {
		return nil, fmt.Errorf("parse structures: %w", err)
	}

	seen := make(map[string]bool)
	for i := range structures {
		st := &structures[i]
		schema, ok := document.Lookup(st.DocumentType)
		if !ok {
			return nil, fmt.Errorf("entry %d: unknown document type %q", i+1, st.DocumentType)
		}
		if seen[st.DocumentType] {
			return nil, fmt.Errorf("entry %d: duplicate document type %q", i+1, st.DocumentType)
		}
		seen[st.DocumentType] = true

		if st.SpreadsheetID == "" {
			st.SpreadsheetID = model.DefaultSpreadsheet
		}
		for _, f := range st.Fields {
			if _, ok := schema.Field(f); !ok {
				return nil, fmt.Errorf("entry %d: %s has no field %q", i+1, st.DocumentType, f)
			}
		}
	}
	return structures, nil
}

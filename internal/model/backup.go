package model

import (
	"fmt"
	"time"
)

type BackupStatus string

const (
	BackupStatusPending BackupStatus = "pending"
	BackupStatusSuccess BackupStatus = "success"
	BackupStatusPartial BackupStatus = "partial"
	BackupStatusFailed  BackupStatus = "failed"
)

// Terminal reports whether s is a final run status.
func (s BackupStatus) Terminal() bool {
	return s == BackupStatusSuccess || s == BackupStatusPartial || s == BackupStatusFailed
}

type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerDocument  Trigger = "document"
)

// DefaultSpreadsheet values in a BackupStructure resolve to the configured spreadsheet.
const (
	DefaultSpreadsheet       = "DEFAULT"
	DefaultSpreadsheetLegacy = "DEFAULT_SPREADSHEET"
)

type BackupConfig struct {
	SpreadsheetID      string    `json:"spreadsheet_id"`
	ServiceAccountJSON string    `json:"service_account_json"`
	UpdatedAt          time.Time `json:"updated_at"`
	CreatedAt          time.Time `json:"created_at"`
}

type Schedule struct {
	Hour    int  `json:"hour"`
	Minute  int  `json:"minute"`
	Enabled bool `json:"enabled"`
}

// String formats the schedule as HH:MM.
func (s Schedule) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// DefaultSchedule runs the backup every day at 18:00.
var DefaultSchedule = Schedule{Hour: 18, Minute: 0, Enabled: true}

type BackupStructure struct {
	DocumentType  string   `json:"documentType" yaml:"documentType"`
	SpreadsheetID string   `json:"spreadsheetId" yaml:"spreadsheetId"`
	SheetName     string   `json:"sheetName" yaml:"sheetName"`
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	Fields        []string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Spreadsheet returns the structure's spreadsheet, or fallback when it is unset or a default marker.
func (b BackupStructure) Spreadsheet(fallback string) string {
	switch b.SpreadsheetID {
	case "", DefaultSpreadsheet, DefaultSpreadsheetLegacy:
		return fallback
	}
	return b.SpreadsheetID
}

type WriteAttempt struct {
	Rung  string `json:"rung"`
	Range string `json:"range"`
	Error string `json:"error"`
}

type SheetResult struct {
	Title string `json:"title"`
	Rows  int    `json:"rows"`
	Rung  string `json:"rung,omitempty"`
}

type DocumentResult struct {
	DocumentType  string         `json:"documentType"`
	SpreadsheetID string         `json:"spreadsheetId,omitempty"`
	Status        BackupStatus   `json:"status"`
	RecordCount   int            `json:"recordCount"`
	Sheets        []SheetResult  `json:"sheets,omitempty"`
	Error         string         `json:"error,omitempty"`
	ErrorKind     string         `json:"errorKind,omitempty"`
	Attempts      []WriteAttempt `json:"attempts,omitempty"`
}

type BackupLogEntry struct {
	ID           string           `json:"id"`
	Trigger      Trigger          `json:"trigger"`
	DocumentType string           `json:"documentType,omitempty"`
	Status       BackupStatus     `json:"status"`
	RecordCount  int              `json:"recordCount"`
	StartedAt    time.Time        `json:"startedAt"`
	CompletedAt  *time.Time       `json:"completedAt,omitempty"`
	FailedAt     *time.Time       `json:"failedAt,omitempty"`
	Error        string           `json:"error,omitempty"`
	ErrorKind    string           `json:"errorKind,omitempty"`
	Results      []DocumentResult `json:"results,omitempty"`
}

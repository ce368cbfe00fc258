// Package constants is responsible for defining the constants used in the application.
package constants

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// CmdName is the name of the webhook service command.
	CmdName = "sales-webhook-service"

	// DefaultStateFile is the default name of the ingestion state file.
	//
	// It holds the Drive folder and dataset settings together with the
	// cached artifact pointer ids.
	DefaultStateFile = "file_manager.json"

	// DefaultSheetName is the worksheet written to when the state file
	// does not name one.
	DefaultSheetName = "Sales"
)

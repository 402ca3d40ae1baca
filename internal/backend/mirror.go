package backend

import (
	"context"
	"fmt"

	goption "google.golang.org/api/option"

	"chitieu/internal/config"
	"chitieu/internal/log"
	"chitieu/internal/sheets"
	gsheet "chitieu/internal/sheets/google"
	"chitieu/internal/sheets/memory"
)

// Audit mirror kinds, selected by AUDIT_SINK.
const (
	MirrorNone   = "none"
	MirrorMemory = "memory"
	MirrorSheets = "sheets"
)

// NewAuditMirror builds the worker's optional audit mirror. It returns a nil
// writer for MirrorNone. opts are passed to the Sheets client.
func NewAuditMirror(ctx context.Context, appConfig *config.Config, logger *log.Logger, opts ...goption.ClientOption) (sheets.AuditWriter, error) {
	switch appConfig.AuditSink {
	case "", MirrorNone:
		return nil, nil
	case MirrorMemory:
		return memory.New(), nil
	case MirrorSheets:
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   appConfig.GoogleSpreadsheetID,
			SheetName:       appConfig.GoogleSheetName,
			CredentialsJSON: appConfig.GoogleServiceAccountJSON,
			CredentialsFile: appConfig.GoogleServiceAccountFile,
		}, logger, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets mirror: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown audit sink %q", appConfig.AuditSink)
	}
}

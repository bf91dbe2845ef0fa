package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/openscience/moderation/internal/application/port"
	"github.com/openscience/moderation/internal/domain/entity"
	"github.com/openscience/moderation/internal/domain/workflow"
)

// ExportService writes a provider's moderation activity as a spreadsheet
// for offline review and reporting.
type ExportService struct {
	actions port.ActionRepository
	perms   port.PermissionOracle
	logger  Logger
}

// NewExportService creates the export service
func NewExportService(actions port.ActionRepository, perms port.PermissionOracle, logger Logger) *ExportService {
	return &ExportService{actions: actions, perms: perms, logger: logger}
}

var exportHeader = []string{
	"Date", "Target kind", "Target id", "Trigger", "From state", "To state",
	"Actor", "Automatic", "Comment",
}

// ExportProviderActions writes the provider's actions since the given time
// to w as an xlsx workbook. The caller needs the view capability.
func (s *ExportService) ExportProviderActions(ctx context.Context, actorID, providerID string, since time.Time, w io.Writer) error {
	allowed, err := s.perms.HasProviderCapability(ctx, actorID, entity.CapabilityViewSubmissions, providerID)
	if err != nil {
		return fmt.Errorf("permission check: %w", err)
	}
	if !allowed {
		return &workflow.PermissionsError{ActorID: actorID, Capability: string(entity.CapabilityViewSubmissions)}
	}

	actions, err := s.actions.ListByProvider(ctx, providerID, since)
	if err != nil {
		return fmt.Errorf("list provider actions: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Moderation activity"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to remove default sheet: %w", err)
	}

	for col, title := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to compute header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, a := range actions {
		values := []interface{}{
			a.CreatedAt.Format(time.RFC3339),
			string(a.Target.Kind),
			a.Target.ID,
			a.Trigger.String(),
			a.FromState.String(),
			a.ToState.String(),
			a.CreatorID,
			a.Auto,
			a.Comment,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("failed to compute cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("failed to write row %d: %w", i+2, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	s.logger.Info("Exported provider actions",
		"provider_id", providerID, "rows", len(actions))
	return nil
}

// Package export produces review artifacts for finished jobs. Weak accepts
// are flagged for a human pass; the XLSX workbook is what reviewers get.
package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/formpilot/fieldmap/internal/repository"
	"github.com/formpilot/fieldmap/internal/scorer"
)

type Service struct {
	store  repository.Store
	logger *slog.Logger
}

func NewService(store repository.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// ReviewWorkbookXLSX renders a finished job's mappings and warnings as an
// XLSX workbook. Jobs still in flight return an error; there is nothing
// stable to review yet.
func (s *Service) ReviewWorkbookXLSX(ctx context.Context, jobID uuid.UUID) ([]byte, error) {
	state, err := s.store.LoadCheckpoint(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if !state.Stage.Terminal() {
		return nil, fmt.Errorf("job %s still processing (stage %s)", jobID, state.Stage)
	}

	f := excelize.NewFile()
	const sheet = "Mappings"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Source Field",
		"Target Field",
		"Value",
		"Confidence",
		"Flagged",
		"Lexical",
		"Token Overlap",
		"Type",
		"Alias",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}

	for row, m := range state.CurrentMappings {
		values := []any{
			m.SourceName,
			m.TargetName,
			m.Value,
			m.Confidence,
			m.Flagged,
			m.StrategyBreakdown[scorer.StrategyLexical],
			m.StrategyBreakdown[scorer.StrategyTokenOverlap],
			m.StrategyBreakdown[scorer.StrategyType],
			m.StrategyBreakdown[scorer.StrategyAlias],
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	if len(state.Warnings) > 0 {
		const wsheet = "Warnings"
		if _, err := f.NewSheet(wsheet); err != nil {
			return nil, err
		}
		for i, w := range state.Warnings {
			cell, _ := excelize.CoordinatesToCellName(1, i+1)
			if err := f.SetCellValue(wsheet, cell, w); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Info("export.review.ok", "job_id", jobID, "mappings", len(state.CurrentMappings))
	return buf.Bytes(), nil
}

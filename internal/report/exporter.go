package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/formdesk/flowengine/internal/application/port"
	"github.com/formdesk/flowengine/internal/infrastructure/queue"
)

const sheetName = "Submissions"

// Metadata columns written before the template's own fields
var metaHeaders = []string{"Instance ID", "Status", "Current Step", "Created By", "Submitted At"}

// Exporter writes a template's submissions to an Excel workbook, one row
// per instance with a column per template field
type Exporter struct {
	templates port.TemplateRepository
	instances port.InstanceRepository
	batchSize int
	logger    *zap.Logger
}

// NewExporter creates an exporter
func NewExporter(templates port.TemplateRepository, instances port.InstanceRepository, logger *zap.Logger) *Exporter {
	return &Exporter{
		templates: templates,
		instances: instances,
		batchSize: 200,
		logger:    logger,
	}
}

// Export writes the workbook to w
func (e *Exporter) Export(ctx context.Context, templateID int64, w io.Writer) error {
	f, err := e.build(ctx, templateID)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// ExportToFile writes the workbook to the given path
func (e *Exporter) ExportToFile(ctx context.Context, templateID int64, outputPath string) error {
	f, err := e.build(ctx, templateID)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	e.logger.Info("Submission export written",
		zap.Int64("template_id", templateID),
		zap.String("output_path", outputPath))
	return nil
}

func (e *Exporter) build(ctx context.Context, templateID int64) (*excelize.File, error) {
	tpl, err := e.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	fields := tpl.Fields()

	f := excelize.NewFile()
	f.SetSheetName(f.GetSheetName(0), sheetName)

	headers := make([]string, 0, len(metaHeaders)+len(fields))
	headers = append(headers, metaHeaders...)
	for _, fld := range fields {
		label := fld.Label
		if label == "" {
			label = fld.ID
		}
		headers = append(headers, label)
	}
	for col, h := range headers {
		e.setCell(f, col+1, 1, h)
	}

	row := 2
	offset := 0
	for {
		batch, err := e.instances.ListByTemplate(ctx, templateID, e.batchSize, offset)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("list instances: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, inst := range batch {
			submitted := ""
			if inst.SubmittedAt != nil {
				submitted = inst.SubmittedAt.Format(time.RFC3339)
			}
			e.setCell(f, 1, row, inst.ID)
			e.setCell(f, 2, row, string(inst.Status))
			e.setCell(f, 3, row, inst.State.CurrentStep)
			e.setCell(f, 4, row, inst.CreatedBy)
			e.setCell(f, 5, row, submitted)

			for i, fld := range fields {
				if v, ok := inst.Data[fld.ID]; ok {
					e.setCell(f, len(metaHeaders)+i+1, row, v)
				}
			}
			row++
		}
		offset += len(batch)
	}

	e.logger.Info("Submission export built",
		zap.Int64("template_id", templateID),
		zap.String("template_name", tpl.Name),
		zap.Int("rows", row-2))
	return f, nil
}

func (e *Exporter) setCell(f *excelize.File, col, row int, value any) {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		e.logger.Warn("Bad cell coordinates",
			zap.Int("col", col),
			zap.Int("row", row),
			zap.Error(err))
		return
	}
	if err := f.SetCellValue(sheetName, cell, value); err != nil {
		e.logger.Warn("Failed to set cell value",
			zap.String("cell", cell),
			zap.Error(err))
	}
}

// TaskHandler adapts the exporter into a queue handler for report_export
// tasks. The payload names the template and the destination path.
func TaskHandler(exporter *Exporter) queue.HandlerFunc {
	return func(ctx context.Context, payload map[string]any) error {
		templateID := int64Value(payload, "template_id")
		if templateID == 0 {
			return fmt.Errorf("export task has no template_id")
		}
		outputPath, _ := payload["output_path"].(string)
		if outputPath == "" {
			return fmt.Errorf("export task has no output_path")
		}
		return exporter.ExportToFile(ctx, templateID, outputPath)
	}
}

func int64Value(payload map[string]any, key string) int64 {
	switch v := payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

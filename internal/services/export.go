package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/aigoflow/mmss-service/internal/models"
)

// TaskRow is one exported task
type TaskRow struct {
	TaskID      string  `parquet:"task_id"`
	Kind        string  `parquet:"kind"`
	Status      string  `parquet:"status"`
	CreatedUnix float64 `parquet:"created_unix"`
	Payload     string  `parquet:"payload"`
	Metrics     string  `parquet:"metrics"`
}

// TaskRowsFromRecords flattens stored records into export rows
func TaskRowsFromRecords(recs []*models.TaskRecord) ([]TaskRow, error) {
	rows := make([]TaskRow, 0, len(recs))
	for _, rec := range recs {
		payload, err := json.Marshal(rec.Command)
		if err != nil {
			return nil, fmt.Errorf("failed to encode command %s: %w", rec.TaskID, err)
		}
		metrics := "null"
		if rec.Metrics != nil {
			b, err := json.Marshal(rec.Metrics)
			if err != nil {
				return nil, fmt.Errorf("failed to encode metrics %s: %w", rec.TaskID, err)
			}
			metrics = string(b)
		}
		rows = append(rows, TaskRow{
			TaskID:      rec.TaskID.String(),
			Kind:        string(rec.Command.GeometricOperator),
			Status:      string(rec.Status),
			CreatedUnix: float64(rec.CreatedAt.UnixNano()) / 1e9,
			Payload:     string(payload),
			Metrics:     metrics,
		})
	}
	return rows, nil
}

// ExportTasks writes every task as a Parquet file to w and returns the row count
func (s *TaskService) ExportTasks(ctx context.Context, w io.Writer) (int, error) {
	recs, err := s.Records(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := TaskRowsFromRecords(recs)
	if err != nil {
		return 0, err
	}

	writer := parquet.NewGenericWriter[TaskRow](w)
	if _, err := writer.Write(rows); err != nil {
		return 0, fmt.Errorf("write parquet: %w", err)
	}
	if err := writer.Close(); err != nil {
		return 0, fmt.Errorf("close parquet writer: %w", err)
	}
	return len(rows), nil
}

// ReadTaskRows decodes a Parquet export
func ReadTaskRows(data []byte) ([]TaskRow, error) {
	reader := parquet.NewGenericReader[TaskRow](bytes.NewReader(data))
	defer reader.Close()

	rows := make([]TaskRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	return rows[:n], nil
}

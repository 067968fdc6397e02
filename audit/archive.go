package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"payguard/observability"
)

// Archiver materialises closed ledger windows as CSV and Parquet artefacts so
// the trail can be shipped to offline analytics without touching the live
// database.
type Archiver struct {
	ledger    *Ledger
	outputDir string
	metrics   *observability.AuditMetrics
}

// ArchiveResult summarises one export run.
type ArchiveResult struct {
	Start       time.Time
	End         time.Time
	Rows        int
	CSVPath     string
	ParquetPath string
}

// NewArchiver builds an archiver writing under outputDir. An empty outputDir
// falls back to payguard-data/audit.
func NewArchiver(ledger *Ledger, outputDir string) (*Archiver, error) {
	if ledger == nil {
		return nil, fmt.Errorf("audit: ledger is required")
	}
	if strings.TrimSpace(outputDir) == "" {
		outputDir = filepath.Join("payguard-data", "audit")
	}
	return &Archiver{
		ledger:    ledger,
		outputDir: outputDir,
		metrics:   observability.Audit(),
	}, nil
}

// Archive exports every entry created within [start, end). Empty windows are
// recorded but produce no files.
func (a *Archiver) Archive(ctx context.Context, start, end time.Time) (*ArchiveResult, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("audit: archive end before start")
	}
	entries, err := a.ledger.EventsBetween(ctx, start, end)
	if err != nil {
		a.metrics.RecordArchive(0, err)
		return nil, err
	}
	result := &ArchiveResult{Start: start, End: end, Rows: len(entries)}
	if len(entries) == 0 {
		a.metrics.RecordArchive(0, nil)
		return result, nil
	}

	runDir := filepath.Join(a.outputDir, fmt.Sprintf("%s_%s", start.UTC().Format("20060102T1504"), end.UTC().Format("20060102T1504")))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		err = fmt.Errorf("audit: ensure archive dir: %w", err)
		a.metrics.RecordArchive(0, err)
		return nil, err
	}
	csvPath := filepath.Join(runDir, "events.csv")
	if err := writeCSV(csvPath, entries); err != nil {
		a.metrics.RecordArchive(0, err)
		return nil, err
	}
	parquetPath := filepath.Join(runDir, "events.parquet")
	if err := writeParquet(parquetPath, entries); err != nil {
		a.metrics.RecordArchive(0, err)
		return nil, err
	}
	result.CSVPath = csvPath
	result.ParquetPath = parquetPath
	a.metrics.RecordArchive(len(entries), nil)
	return result, nil
}

func writeCSV(path string, entries []Entry) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audit: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	header := []string{"id", "event_type", "payload", "created_at"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("audit: write csv header: %w", err)
	}
	for _, entry := range entries {
		payload, err := encodePayload(entry.Payload)
		if err != nil {
			return err
		}
		record := []string{
			strconv.FormatInt(entry.ID, 10),
			entry.EventType,
			payload,
			entry.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("audit: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("audit: flush csv: %w", err)
	}
	return nil
}

type parquetEntry struct {
	ID        int64  `parquet:"name=id, type=INT64"`
	EventType string `parquet:"name=event_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Payload   string `parquet:"name=payload, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func writeParquet(path string, entries []Entry) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audit: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetEntry), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("audit: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, entry := range entries {
		payload, err := encodePayload(entry.Payload)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return err
		}
		pr := &parquetEntry{
			ID:        entry.ID,
			EventType: entry.EventType,
			Payload:   payload,
			CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("audit: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("audit: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("audit: close parquet file: %w", err)
	}
	return nil
}

func encodePayload(payload map[string]string) (string, error) {
	if payload == nil {
		payload = map[string]string{}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("audit: encode payload: %w", err)
	}
	return string(encoded), nil
}

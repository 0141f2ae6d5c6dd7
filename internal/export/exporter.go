package export

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/conformapro/conformapro/internal/observability"
	"github.com/conformapro/conformapro/internal/shared"
)

// User-facing export notices.
const (
	MessageEmpty   = "Nenhum dado para exportar"
	MessageFailure = "Erro ao exportar arquivo"
)

// FileWriter delivers a generated file.
type FileWriter interface {
	WriteFile(ctx context.Context, name string, data []byte) error
}

// Notifier reports the outcome of an export to the user.
type Notifier interface {
	Notify(kind, message string)
}

// Exporter turns tables into dated xlsx files. The zero value is unusable;
// Writer and Notifier are usually set per request.
type Exporter struct {
	Writer   FileWriter
	Notifier Notifier
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Now      func() time.Time
}

// FileName returns {baseName}_{YYYY-MM-DD}.xlsx for the UTC date of at.
func FileName(baseName string, at time.Time) string {
	return baseName + "_" + at.UTC().Format(time.DateOnly) + ".xlsx"
}

// ExportToExcel writes t as {baseName}_{date}.xlsx. An empty table is
// reported as a warning without any write. Failures are logged and reported
// with a generic notice; the call always returns.
func (e Exporter) ExportToExcel(ctx context.Context, t Table, baseName, sheetName string) (string, bool) {
	if t.Len() == 0 {
		e.notify(shared.FlashWarning, MessageEmpty)
		e.Metrics.Export("empty")
		return "", false
	}
	name := FileName(baseName, e.now())
	data, err := Workbook(t, sheetName)
	if err == nil && e.Writer == nil {
		err = errors.New("export: no file writer")
	}
	if err == nil {
		err = e.Writer.WriteFile(ctx, name, data)
	}
	if err != nil {
		e.logger().Error("export workbook", slog.String("file", name), slog.Any("error", err))
		e.notify(shared.FlashError, MessageFailure)
		e.Metrics.Export("failure")
		return "", false
	}
	e.notify(shared.FlashSuccess, "Arquivo "+name+" exportado com sucesso")
	e.Metrics.Export("success")
	return name, true
}

func (e Exporter) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Exporter) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Exporter) notify(kind, message string) {
	if e.Notifier != nil {
		e.Notifier.Notify(kind, message)
	}
}

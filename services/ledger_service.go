package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/storage"
)

// maxExportRows caps a single ledger export.
const maxExportRows = 50000

type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

// ContentType returns the MIME type of an export.
func (f ExportFormat) ContentType() string {
	if f == ExportXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// amountColumn is the index of Amount in exportHeader.
const amountColumn = 4

var exportHeader = []string{"ID", "User", "Kind", "Status", "Amount", "Currency", "Listing", "Counterparty", "Reference", "Note", "Created"}

// LedgerService exposes the append-only transaction ledger.
type LedgerService struct {
	store storage.Store
	log   logrus.FieldLogger
}

func NewLedgerService(store storage.Store, log logrus.FieldLogger) *LedgerService {
	return &LedgerService{store: store, log: log.WithField("component", "ledger")}
}

// History returns a user's own entries, newest first.
func (s *LedgerService) History(ctx context.Context, userID string, page storage.Page) ([]models.Transaction, error) {
	txs, err := s.store.ListTransactions(ctx, storage.TransactionFilter{UserID: userID, Page: page})
	return txs, fromStorage(err, "list history")
}

// List returns entries across all users, optionally of one kind.
func (s *LedgerService) List(ctx context.Context, kind models.TransactionKind, page storage.Page) ([]models.Transaction, error) {
	if kind != "" && !kind.Valid() {
		return nil, validationf("unknown transaction kind %q", kind)
	}
	txs, err := s.store.ListTransactions(ctx, storage.TransactionFilter{Kind: kind, Page: page})
	return txs, fromStorage(err, "list transactions")
}

func (s *LedgerService) all(ctx context.Context, kind models.TransactionKind) ([]models.Transaction, error) {
	var out []models.Transaction
	page := storage.Page{Limit: 200}
	for len(out) < maxExportRows {
		batch, err := s.List(ctx, kind, page)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < page.Limit {
			break
		}
		page.Offset += page.Limit
	}
	if len(out) > maxExportRows {
		out = out[:maxExportRows]
	}
	return out, nil
}

// Export writes every entry of kind (all kinds when empty) to w.
func (s *LedgerService) Export(ctx context.Context, w io.Writer, format ExportFormat, kind models.TransactionKind) error {
	txs, err := s.all(ctx, kind)
	if err != nil {
		return err
	}

	switch format {
	case ExportCSV:
		err = writeCSV(w, txs)
	case ExportXLSX:
		err = writeXLSX(w, txs)
	default:
		return validationf("unknown export format %q", format)
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", format, err)
	}
	s.log.WithFields(logrus.Fields{"format": format, "rows": len(txs)}).Info("ledger exported")
	return nil
}

func exportRow(t models.Transaction) []string {
	return []string{
		t.ID,
		t.UserID,
		string(t.Kind),
		string(t.Status),
		t.Amount.String(),
		t.Currency.String(),
		t.Metadata.ListingName,
		t.Metadata.CounterpartyID,
		t.Metadata.ReferenceID,
		t.Note,
		t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// csvSafe keeps spreadsheet applications from evaluating user text as a
// formula.
func csvSafe(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}

func writeCSV(w io.Writer, txs []models.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, t := range txs {
		row := exportRow(t)
		for i := range row {
			if i != amountColumn {
				row[i] = csvSafe(row[i])
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, txs []models.Transaction) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Transactions"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	for i, h := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}
	for r, t := range txs {
		for c, v := range exportRow(t) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if c == amountColumn {
				// amounts stay numeric so spreadsheets can sum them
				f.SetCellValue(sheet, cell, t.Amount.InexactFloat64())
				continue
			}
			f.SetCellValue(sheet, cell, v)
		}
	}
	f.SetColWidth(sheet, "A", "B", 38)
	f.SetColWidth(sheet, "G", "J", 24)
	f.SetColWidth(sheet, "K", "K", 22)

	_, err = f.WriteTo(w)
	return err
}

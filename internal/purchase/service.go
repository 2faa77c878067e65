package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/zombor/coffee-tracker/internal/scanning"
)

// ErrInvalidRecord is returned when a record fails validation
var ErrInvalidRecord = errors.New("invalid record")

// ScanResult is what a receipt scan offers to prefill the record form
type ScanResult struct {
	Fields   scanning.ExtractedFields `json:"fields"`
	ImageURL string                   `json:"imageUrl"`
}

// Summary is a filtered record list together with its aggregate
type Summary struct {
	Records []PurchaseRecord `json:"records"`
	Stats   Stats            `json:"stats"`
}

// Options holds the distinct values offered by the filter controls
type Options struct {
	Shops    []string `json:"shops"`
	Flavors  []string `json:"flavors"`
	CupSizes []string `json:"cupSizes"`
}

// Service handles purchase record operations
type Service struct {
	store    *Store
	scanner  scanning.Scanner
	exporter *Exporter
}

// NewService creates a new Service
func NewService(store *Store, scanner scanning.Scanner, exporter *Exporter) *Service {
	if exporter == nil {
		exporter = NewExporter(nil)
	}
	return &Service{
		store:    store,
		scanner:  scanner,
		exporter: exporter,
	}
}

// validateInput enforces the fields a persisted record must have
func validateInput(in RecordInput) error {
	var missing []string
	if strings.TrimSpace(in.Date) == "" {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(in.Shop) == "" {
		missing = append(missing, "shop")
	}
	if strings.TrimSpace(in.Name) == "" {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrInvalidRecord, strings.Join(missing, ", "))
	}
	return validatePrice(in.Price)
}

func validatePrice(price float64) error {
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return fmt.Errorf("%w: price must be a non-negative number", ErrInvalidRecord)
	}
	return nil
}

// validatePatch rejects patches that would blank a required field
func validatePatch(p RecordPatch) error {
	required := []struct {
		name  string
		value *string
	}{{"date", p.Date}, {"shop", p.Shop}, {"name", p.Name}}
	for _, f := range required {
		if f.value != nil && strings.TrimSpace(*f.value) == "" {
			return fmt.Errorf("%w: %s cannot be empty", ErrInvalidRecord, f.name)
		}
	}
	if p.Price != nil {
		return validatePrice(*p.Price)
	}
	return nil
}

// CreateRecord validates and stores a new record
func (s *Service) CreateRecord(in RecordInput) (PurchaseRecord, error) {
	if err := validateInput(in); err != nil {
		return PurchaseRecord{}, err
	}
	record, err := s.store.Create(in)
	if err != nil {
		return PurchaseRecord{}, fmt.Errorf("creating record: %w", err)
	}
	return record, nil
}

// UpdateRecord merges patch into an existing record. found is false when
// no record has the ID.
func (s *Service) UpdateRecord(id string, patch RecordPatch) (record PurchaseRecord, found bool, err error) {
	if err := validatePatch(patch); err != nil {
		return PurchaseRecord{}, false, err
	}
	record, found, err = s.store.Update(id, patch)
	if err != nil {
		return PurchaseRecord{}, false, fmt.Errorf("updating record: %w", err)
	}
	return record, found, nil
}

// DeleteRecord removes a record. found is false when no record has the ID.
func (s *Service) DeleteRecord(id string) (bool, error) {
	found, err := s.store.Delete(id)
	if err != nil {
		return false, fmt.Errorf("deleting record: %w", err)
	}
	return found, nil
}

// GetRecord retrieves a record by ID
func (s *Service) GetRecord(id string) (PurchaseRecord, bool) {
	return s.store.Get(id)
}

// ListRecords returns the records matching c, newest first
func (s *Service) ListRecords(c FilterCriteria) []PurchaseRecord {
	return FilterAndSort(s.store.Records(), c)
}

// Summary returns the records matching c with their aggregate
func (s *Service) Summary(c FilterCriteria) Summary {
	records := s.ListRecords(c)
	return Summary{Records: records, Stats: Aggregate(records)}
}

// Options returns the distinct shops, flavors and cup sizes over all records
func (s *Service) Options() Options {
	records := s.store.Records()
	// the fields are known, so DistinctValues cannot fail here
	shops, _ := DistinctValues(records, FieldShop)
	flavors, _ := DistinctValues(records, FieldFlavor)
	cupSizes, _ := DistinctValues(records, FieldCupSize)
	return Options{Shops: shops, Flavors: flavors, CupSizes: cupSizes}
}

// DistinctValues returns the distinct values of one field over all records
func (s *Service) DistinctValues(field Field) ([]string, error) {
	return DistinctValues(s.store.Records(), field)
}

// ScanImage extracts fields from an uploaded receipt and encodes the upload as
// a data URL for the record. Extraction failures yield empty fields.
func (s *Service) ScanImage(ctx context.Context, filename string, data []byte, contentType string) ScanResult {
	fields := s.scanner.ProcessImage(ctx, scanning.Image{
		Data:        data,
		ContentType: contentType,
		Filename:    filename,
	})
	if fields.Empty() {
		slog.Info("No fields recognized on receipt", "filename", filename)
	}
	return ScanResult{
		Fields:   fields,
		ImageURL: scanning.EncodeDataURL(data, contentType),
	}
}

// Export returns the records matching c as an XLSX workbook
func (s *Service) Export(c FilterCriteria) ([]byte, error) {
	data, err := s.exporter.WriteXLSX(s.ListRecords(c))
	if err != nil {
		return nil, fmt.Errorf("exporting records: %w", err)
	}
	return data, nil
}

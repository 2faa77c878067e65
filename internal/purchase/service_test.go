package purchase

import (
	"bytes"
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"
	"github.com/zombor/coffee-tracker/internal/scanning"
)

// mockScanner is a mock implementation of scanning.Scanner
type mockScanner struct {
	fields scanning.ExtractedFields
	seen   []scanning.Image
}

func (m *mockScanner) ProcessImage(ctx context.Context, img scanning.Image) scanning.ExtractedFields {
	m.seen = append(m.seen, img)
	return m.fields
}

var _ = Describe("Service", func() {
	var (
		blobs   *mockBlobStore
		scanner *mockScanner
		service *Service
		input   RecordInput
	)

	BeforeEach(func() {
		blobs = newMockBlobStore()
		scanner = &mockScanner{}
		input = RecordInput{Date: "2024-01-15", Shop: "星巴克", Name: "拿铁", Price: 32}
	})

	JustBeforeEach(func() {
		service = NewService(openTestStore(blobs, &mockIDGenerator{}), scanner, nil)
	})

	Describe("CreateRecord", func() {
		It("should store a valid record", func() {
			record, err := service.CreateRecord(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(record.ID).NotTo(BeEmpty())
			Expect(service.ListRecords(FilterCriteria{})).To(HaveLen(1))
		})

		It("should accept a zero price", func() {
			input.Price = 0
			_, err := service.CreateRecord(input)
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns ErrInvalidRecord listing missing fields", func() {
			_, err := service.CreateRecord(RecordInput{Shop: " ", Price: 1})
			Expect(err).To(MatchError(ErrInvalidRecord))
			Expect(err.Error()).To(ContainSubstring("date, shop, name"))
			Expect(blobs.saves).To(BeZero())
		})

		It("returns ErrInvalidRecord for a negative price", func() {
			input.Price = -1
			_, err := service.CreateRecord(input)
			Expect(err).To(MatchError(ErrInvalidRecord))
		})

		It("should wrap store failures", func() {
			blobs.saveErr = errors.New("disk full")
			_, err := service.CreateRecord(input)
			Expect(err).To(MatchError(ContainSubstring("creating record: ")))
			Expect(errors.Is(err, ErrInvalidRecord)).To(BeFalse())
		})
	})

	Describe("UpdateRecord", func() {
		var existing PurchaseRecord

		JustBeforeEach(func() {
			var err error
			existing, err = service.CreateRecord(input)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should merge the patch", func() {
			shop := "瑞幸"
			record, found, err := service.UpdateRecord(existing.ID, RecordPatch{Shop: &shop})
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(record.Shop).To(Equal("瑞幸"))
			Expect(record.Name).To(Equal("拿铁"))
		})

		It("should report an unknown id", func() {
			_, found, err := service.UpdateRecord("missing", RecordPatch{})
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())
		})

		It("should reject blanking a required field", func() {
			blank := ""
			_, _, err := service.UpdateRecord(existing.ID, RecordPatch{Name: &blank})
			Expect(err).To(MatchError(ContainSubstring("name cannot be empty")))
			Expect(errors.Is(err, ErrInvalidRecord)).To(BeTrue())
		})

		It("should reject a negative price", func() {
			price := -3.0
			_, _, err := service.UpdateRecord(existing.ID, RecordPatch{Price: &price})
			Expect(err).To(MatchError(ErrInvalidRecord))
		})
	})

	Describe("DeleteRecord", func() {
		It("should remove the record", func() {
			record, err := service.CreateRecord(input)
			Expect(err).NotTo(HaveOccurred())

			found, err := service.DeleteRecord(record.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())

			_, found = service.GetRecord(record.ID)
			Expect(found).To(BeFalse())
		})
	})

	Describe("Summary", func() {
		JustBeforeEach(func() {
			for _, price := range []float64{10, 20, 30} {
				in := input
				in.Price = price
				_, err := service.CreateRecord(in)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("should aggregate the filtered records", func() {
			minPrice := 15.0
			summary := service.Summary(FilterCriteria{MinPrice: &minPrice})
			Expect(summary.Records).To(HaveLen(2))
			Expect(summary.Stats).To(Equal(Stats{Count: 2, TotalPrice: 50, AveragePrice: 25}))
		})

		It("should list the newest record first", func() {
			summary := service.Summary(FilterCriteria{})
			Expect(summary.Records[0].Price).To(Equal(30.0))
		})
	})

	Describe("Options", func() {
		It("should return empty lists with no records", func() {
			options := service.Options()
			Expect(options.Shops).To(BeEmpty())
			Expect(options.Flavors).To(BeEmpty())
			Expect(options.CupSizes).To(BeEmpty())
		})

		It("should return the distinct values of each field", func() {
			for _, shop := range []string{"瑞幸", "星巴克", "瑞幸"} {
				in := input
				in.Shop = shop
				in.CupSize = "大杯"
				_, err := service.CreateRecord(in)
				Expect(err).NotTo(HaveOccurred())
			}

			options := service.Options()
			Expect(options.Shops).To(HaveLen(2))
			Expect(options.CupSizes).To(Equal([]string{"大杯"}))
			Expect(options.Flavors).To(Equal([]string{""}))
		})

		It("returns ErrUnknownField for other fields", func() {
			_, err := service.DistinctValues(Field("notes"))
			Expect(err).To(MatchError(ErrUnknownField))
		})
	})

	Describe("ScanImage", func() {
		var price float64

		BeforeEach(func() {
			shop := "星巴克"
			price = 18.5
			scanner.fields = scanning.ExtractedFields{Shop: &shop, Price: &price}
		})

		It("should return the extracted fields", func() {
			result := service.ScanImage(context.Background(), "receipt.png", []byte("png"), "image/png")
			Expect(result.Fields.Shop).To(HaveValue(Equal("星巴克")))
			Expect(result.Fields.Price).To(HaveValue(Equal(18.5)))
		})

		It("should hand the upload to the scanner", func() {
			service.ScanImage(context.Background(), "receipt.png", []byte("png"), "image/png")
			Expect(scanner.seen).To(HaveLen(1))
			Expect(scanner.seen[0].Filename).To(Equal("receipt.png"))
			Expect(scanner.seen[0].Data).To(Equal([]byte("png")))
		})

		It("should encode the upload as a data URL", func() {
			result := service.ScanImage(context.Background(), "receipt.png", []byte("png"), "image/png")
			Expect(result.ImageURL).To(Equal("data:image/png;base64,cG5n"))
		})

		When("nothing is recognized", func() {
			BeforeEach(func() {
				scanner.fields = scanning.ExtractedFields{}
			})

			It("should still return the image", func() {
				result := service.ScanImage(context.Background(), "receipt.png", []byte("png"), "image/png")
				Expect(result.Fields.Empty()).To(BeTrue())
				Expect(result.ImageURL).To(HavePrefix("data:image/png;base64,"))
			})
		})
	})

	Describe("Export", func() {
		It("should write the filtered records", func() {
			_, err := service.CreateRecord(input)
			Expect(err).NotTo(HaveOccurred())
			other := input
			other.Shop = "瑞幸"
			_, err = service.CreateRecord(other)
			Expect(err).NotTo(HaveOccurred())

			shop := "瑞幸"
			data, err := service.Export(FilterCriteria{Shop: &shop})
			Expect(err).NotTo(HaveOccurred())

			f, err := excelize.OpenReader(bytes.NewReader(data))
			Expect(err).NotTo(HaveOccurred())
			defer f.Close()
			rows, err := f.GetRows(exportSheet)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows[1][1]).To(Equal("瑞幸"))
			Expect(strings.Join(rows[len(rows)-1], ",")).To(HavePrefix("Count,1"))
		})
	})
})

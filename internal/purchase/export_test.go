package purchase

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"
)

var _ = Describe("Exporter", func() {
	var (
		records []PurchaseRecord
		rows    [][]string
	)

	JustBeforeEach(func() {
		data, err := NewExporter(nil).WriteXLSX(records)
		Expect(err).NotTo(HaveOccurred())

		f, err := excelize.OpenReader(bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		Expect(f.GetSheetList()).To(Equal([]string{exportSheet}))
		rows, err = f.GetRows(exportSheet)
		Expect(err).NotTo(HaveOccurred())
	})

	When("records are given", func() {
		BeforeEach(func() {
			records = []PurchaseRecord{
				{Date: "2024-01-15", Shop: "星巴克", Name: "拿铁", Price: 10, Capacity: "473ml", Flavor: "香草", CupSize: "大杯"},
				{Date: "2024-01-16", Shop: "瑞幸", Name: "美式", Price: 20, Notes: strings.Repeat("好", 200)},
			}
		})

		It("should write the header row", func() {
			Expect(rows[0]).To(Equal(exportHeaders))
		})

		It("should write one row per record", func() {
			Expect(rows[1][:7]).To(Equal([]string{"2024-01-15", "星巴克", "拿铁", "10", "473ml", "香草", "大杯"}))
			Expect(rows[2][1]).To(Equal("瑞幸"))
		})

		It("should truncate long notes", func() {
			Expect([]rune(rows[2][7])).To(HaveLen(140))
			Expect(rows[2][7]).To(HaveSuffix("…"))
		})

		It("should end with a totals row", func() {
			Expect(rows[len(rows)-1]).To(Equal([]string{"Count", "2", "Total", "30", "Average", "15"}))
		})
	})

	When("there are no records", func() {
		BeforeEach(func() {
			records = nil
		})

		It("should write zero totals", func() {
			Expect(rows[0]).To(Equal(exportHeaders))
			Expect(rows[len(rows)-1]).To(Equal([]string{"Count", "0", "Total", "0", "Average", "0"}))
		})
	})
})

var _ = Describe("truncate", func() {
	It("should leave short strings alone", func() {
		Expect(truncate("拿铁", 5)).To(Equal("拿铁"))
	})

	It("should cut on rune boundaries", func() {
		Expect(truncate("香草拿铁咖啡", 4)).To(Equal("香草拿…"))
	})
})

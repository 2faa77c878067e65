package scanning

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockRunner is a mock implementation of Runner
type mockRunner struct {
	stdout []byte
	err    error
	name   string
	args   []string
}

func (m *mockRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	m.name = name
	m.args = args
	if m.err != nil {
		return nil, []byte("tesseract: failed"), m.err
	}
	return m.stdout, nil, nil
}

var _ = Describe("Tesseract engine", func() {
	var (
		runner *mockRunner
		cfg    TesseractConfig
		src    Source
		rec    Recognition
		err    error
	)

	BeforeEach(func() {
		runner = &mockRunner{stdout: []byte("商家:  星 巴 克\r\n价格: 18.5\r\n")}
		cfg = TesseractConfig{}
		src = Source{Path: "/tmp/receipt.png"}
	})

	JustBeforeEach(func() {
		factory := NewTesseractFactoryWithRunner(cfg, runner, nil)
		var engine Engine
		engine, err = factory.NewEngine(context.Background())
		Expect(err).NotTo(HaveOccurred())
		defer engine.Close()
		rec, err = engine.Recognize(context.Background(), src)
	})

	When("recognition succeeds", func() {
		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should run tesseract with the default language", func() {
			Expect(runner.name).To(Equal("tesseract"))
			Expect(runner.args).To(Equal([]string{"/tmp/receipt.png", "stdout", "-l", "chi_sim+eng"}))
		})

		It("should normalize the text", func() {
			Expect(rec.Text).To(Equal("商家: 星巴克\n价格: 18.5"))
		})
	})

	When("configured", func() {
		BeforeEach(func() {
			cfg = TesseractConfig{Binary: "/usr/bin/tesseract", Lang: "chi_tra", TessdataDir: "/data", PSM: 6}
		})

		It("should pass the options through", func() {
			Expect(runner.name).To(Equal("/usr/bin/tesseract"))
			Expect(runner.args).To(Equal([]string{"/tmp/receipt.png", "stdout", "-l", "chi_tra", "--psm", "6", "--tessdata-dir", "/data"}))
		})
	})

	When("the command fails", func() {
		BeforeEach(func() {
			runner.err = errors.New("exit status 1")
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("exit status 1")))
		})
	})

	When("no staged path is given", func() {
		BeforeEach(func() {
			src = Source{Data: []byte("x")}
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("stripCodeFence", func() {
	It("should remove a fenced block", func() {
		Expect(stripCodeFence("```text\n价格: 18.5\n```")).To(Equal("价格: 18.5"))
	})

	It("should leave plain text alone", func() {
		Expect(stripCodeFence(" 价格: 18.5 ")).To(Equal("价格: 18.5"))
	})
})

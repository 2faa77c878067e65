package scanning

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

// mockEngine is a mock implementation of Engine
type mockEngine struct {
	text         string
	recognizeErr error
	panicWith    any
	closed       bool
	seen         Source
	stagedExist  bool
}

func (m *mockEngine) Recognize(ctx context.Context, src Source) (Recognition, error) {
	m.seen = src
	_, statErr := os.Stat(src.Path)
	m.stagedExist = statErr == nil
	if m.panicWith != nil {
		panic(m.panicWith)
	}
	if m.recognizeErr != nil {
		return Recognition{}, m.recognizeErr
	}
	return Recognition{Text: m.text}, nil
}

func (m *mockEngine) Close() error {
	m.closed = true
	return nil
}

// mockEngineFactory hands out a new mockEngine per call
type mockEngineFactory struct {
	newErr  error
	text    string
	engines []*mockEngine
	setup   func(e *mockEngine)
}

func (m *mockEngineFactory) NewEngine(ctx context.Context) (Engine, error) {
	if m.newErr != nil {
		return nil, m.newErr
	}
	e := &mockEngine{text: m.text}
	if m.setup != nil {
		m.setup(e)
	}
	m.engines = append(m.engines, e)
	return e, nil
}

// pngBytes renders a tiny valid PNG
func pngBytes() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

// stagedFiles lists what is left in the staging directory
func stagedFiles(dir string) []os.DirEntry {
	entries, err := os.ReadDir(dir)
	Expect(err).NotTo(HaveOccurred())
	return entries
}

var _ = Describe("Pipeline", func() {
	var (
		factory  *mockEngineFactory
		stageDir string
		pipeline *Pipeline
		img      Image
		fields   ExtractedFields
	)

	BeforeEach(func() {
		factory = &mockEngineFactory{text: "商家: 星巴克\n价格: 18.5\n今天喝了大杯"}
		stageDir = GinkgoT().TempDir()
		stager, err := NewStager(stageDir)
		Expect(err).NotTo(HaveOccurred())
		pipeline = NewPipeline(factory, stager, nil)
		img = Image{Data: pngBytes(), ContentType: "image/png", Filename: "receipt.png"}
	})

	JustBeforeEach(func() {
		fields = pipeline.ProcessImage(context.Background(), img)
	})

	When("recognition succeeds", func() {
		It("should return the extracted fields", func() {
			Expect(fields.Shop).To(HaveValue(Equal("星巴克")))
			Expect(fields.Price).To(HaveValue(Equal(18.5)))
			Expect(fields.CupSize).To(HaveValue(Equal("大杯")))
		})

		It("should hand the engine a staged file", func() {
			Expect(factory.engines).To(HaveLen(1))
			Expect(factory.engines[0].stagedExist).To(BeTrue())
			Expect(factory.engines[0].seen.ContentType).To(Equal("image/png"))
		})

		It("should release the engine", func() {
			Expect(factory.engines[0].closed).To(BeTrue())
		})

		It("should remove the staged file", func() {
			Expect(stagedFiles(stageDir)).To(BeEmpty())
		})
	})

	When("the engine returns no text", func() {
		BeforeEach(func() {
			factory.text = ""
		})

		It("should return an empty result", func() {
			Expect(fields.Empty()).To(BeTrue())
		})
	})

	When("the engine fails", func() {
		BeforeEach(func() {
			factory.setup = func(e *mockEngine) { e.recognizeErr = errors.New("engine error") }
		})

		It("should return an empty result", func() {
			Expect(fields).To(Equal(ExtractedFields{}))
		})

		It("should still release the engine", func() {
			Expect(factory.engines[0].closed).To(BeTrue())
		})

		It("should still remove the staged file", func() {
			Expect(stagedFiles(stageDir)).To(BeEmpty())
		})
	})

	When("the engine panics", func() {
		BeforeEach(func() {
			factory.setup = func(e *mockEngine) { e.panicWith = "boom" }
		})

		It("should return an empty result", func() {
			Expect(fields.Empty()).To(BeTrue())
		})

		It("should still release the engine and staged file", func() {
			Expect(factory.engines[0].closed).To(BeTrue())
			Expect(stagedFiles(stageDir)).To(BeEmpty())
		})
	})

	When("the engine cannot be acquired", func() {
		BeforeEach(func() {
			factory.newErr = errors.New("no engine")
		})

		It("should return an empty result", func() {
			Expect(fields.Empty()).To(BeTrue())
		})
	})

	When("the image is malformed", func() {
		BeforeEach(func() {
			img = Image{Data: []byte("not an image"), ContentType: "image/jpeg"}
		})

		It("should return an empty result", func() {
			Expect(fields.Empty()).To(BeTrue())
		})

		It("should release the engine", func() {
			Expect(factory.engines[0].closed).To(BeTrue())
		})

		It("should not stage anything", func() {
			Expect(stagedFiles(stageDir)).To(BeEmpty())
		})
	})

	When("the image is empty", func() {
		BeforeEach(func() {
			img = Image{}
		})

		It("should return an empty result", func() {
			Expect(fields.Empty()).To(BeTrue())
		})
	})

	When("the image is a data URL", func() {
		BeforeEach(func() {
			img = Image{URL: EncodeDataURL(pngBytes(), "image/png")}
		})

		It("should return the extracted fields", func() {
			Expect(fields.Shop).To(HaveValue(Equal("星巴克")))
		})
	})

	When("the image is an http URL", func() {
		var server *ghttp.Server

		BeforeEach(func() {
			server = ghttp.NewServer()
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodGet, "/receipt.png"),
				ghttp.RespondWith(http.StatusOK, pngBytes(), http.Header{"Content-Type": []string{"image/png"}}),
			))
			img = Image{URL: server.URL() + "/receipt.png"}
		})

		AfterEach(func() {
			server.Close()
		})

		It("should fetch and extract", func() {
			Expect(server.ReceivedRequests()).To(HaveLen(1))
			Expect(fields.Price).To(HaveValue(Equal(18.5)))
		})
	})

	When("the caller's context is cancelled", func() {
		It("should stop a URL fetch and return empty fields", func() {
			server := ghttp.NewServer()
			defer server.Close()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			result := pipeline.ProcessImage(ctx, Image{URL: server.URL() + "/receipt.png"})
			Expect(result).To(Equal(ExtractedFields{}))
			Expect(server.ReceivedRequests()).To(BeEmpty())
			Expect(factory.engines[len(factory.engines)-1].closed).To(BeTrue())
		})

		It("should not impose its own fetch deadline", func() {
			Expect(pipeline.client.Timeout).To(BeZero())
		})
	})

	When("called twice", func() {
		It("should acquire an independent engine per call", func() {
			second := pipeline.ProcessImage(context.Background(), img)
			Expect(second).To(Equal(fields))
			Expect(factory.engines).To(HaveLen(2))
			Expect(factory.engines[0]).NotTo(BeIdenticalTo(factory.engines[1]))
		})
	})
})

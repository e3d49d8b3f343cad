package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/meter-tracker/internal/common"
)

func testPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		scanner *Ollama
		ext     *Extraction
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		scanner, err = NewOllama(server.URL()+"/", "llava")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		ext, err = scanner.ScanMeter(context.Background(), testPNG(), "image/png")
	})

	When("the model answers with JSON", func() {
		BeforeEach(func() {
			content := `Sure! {"meter_number": {"value": "987", "confidence": 0.9}, "current_reading": {"value": "1.234,5", "confidence": 0.8}}`
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					var req ollamaChatRequest
					Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
					Expect(req.Model).To(Equal("llava"))
					Expect(req.Stream).To(BeFalse())
					Expect(req.Messages).To(HaveLen(2))
					Expect(req.Messages[1].Images).To(HaveLen(1))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: content},
					Done:    true,
				}),
			))
		})

		It("returns the validated extraction", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(ext.MeterNumber.Value).To(Equal("987"))
			Expect(ext.CurrentReading.Value).To(Equal("1.234,5"))
			Expect(ext.Unit).To(Equal(OCRValue{Value: "kWh"}))
		})
	})

	When("the server fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusServiceUnavailable, "model loading"))
		})

		It("reports the backend as unavailable", func() {
			Expect(errors.Is(err, common.ErrBackendUnavailable)).To(BeTrue())
		})
	})

	When("the model answers with prose", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
				Message: ollamaMessage{Role: "assistant", Content: "I can't see a meter."},
			}))
		})

		It("reports no structured result", func() {
			Expect(errors.Is(err, common.ErrNoStructuredResult)).To(BeTrue())
		})
	})
})

var _ = Describe("prepareImage", func() {
	It("passes PNG through untouched", func() {
		data := testPNG()
		out, err := prepareImage(data, "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(data))
	})

	It("sniffs the content type when none is given", func() {
		data := testPNG()
		out, err := prepareImage(data, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(data))
	})

	It("rejects empty uploads", func() {
		_, err := prepareImage(nil, "image/jpeg")
		Expect(err).To(HaveOccurred())
	})

	It("rejects undecodable data", func() {
		_, err := prepareImage([]byte("definitely not an image"), "image/jpeg")
		Expect(err).To(HaveOccurred())
	})

	It("recognises HEIC brands", func() {
		Expect(isHEIC([]byte("\x00\x00\x00\x18ftypheic0000"))).To(BeTrue())
		Expect(isHEIC([]byte("\x00\x00\x00\x18ftypisom0000"))).To(BeFalse())
	})
})

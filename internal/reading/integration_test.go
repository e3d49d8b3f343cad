package reading_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/meter-tracker/internal/meter"
	"github.com/zombor/meter-tracker/internal/reading"
	"github.com/zombor/meter-tracker/internal/scanning"
)

func meterPhoto() []byte {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	img.Set(4, 4, color.White)
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

func ollamaAnswer(content string) http.HandlerFunc {
	return ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
		"message": map[string]string{"role": "assistant", "content": content},
		"done":    true,
	})
}

var _ = Describe("Integration", func() {
	var (
		tempDir string
		store   *reading.BoltStore
		ollama  *ghttp.Server
		api     *ghttp.Server
		server  *reading.Server
		err     error
	)

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()

		store, err = reading.NewBoltStore(filepath.Join(tempDir, "readings.db"))
		Expect(err).NotTo(HaveOccurred())

		archive, err := reading.NewLocalArchive(filepath.Join(tempDir, "captures"))
		Expect(err).NotTo(HaveOccurred())

		ollama = ghttp.NewServer()
		backend, err := scanning.NewOllama(ollama.URL(), "llava")
		Expect(err).NotTo(HaveOccurred())
		scanner := scanning.NewRetrying(backend, 2, time.Millisecond)

		service := reading.NewService(store, scanner, archive, meter.DefaultRegistry())
		server = reading.NewServer(service, reading.BasicAuth{}, 5*time.Second)

		api = ghttp.NewServer()
	})

	AfterEach(func() {
		api.Close()
		ollama.Close()
		store.Close()
	})

	It("scans a photo, stores the reading and serves it back", func() {
		ollama.AppendHandlers(
			ghttp.RespondWith(http.StatusServiceUnavailable, "loading model"),
			ollamaAnswer("```json\n"+`{
				"meter_number": {"value": "1EBZ0100507093", "confidence": 0.97},
				"current_reading": {"value": "012.345,6", "confidence": 0.91},
				"unit": {"value": "kWh", "confidence": 0.99},
				"tariff_info": {"HT": {"value": "unknown", "confidence": 0}, "NT": {"value": "unknown", "confidence": 0}},
				"additional_info": {"value": "unknown", "confidence": 0}
			}`+"\n```"),
		)
		api.AppendHandlers(server.ServeHTTP, server.ServeHTTP, server.ServeHTTP)

		// --- Step 1: scan ---
		payload, _ := json.Marshal(map[string]string{
			"image":      "data:image/png;base64," + base64.StdEncoding.EncodeToString(meterPhoto()),
			"meter_type": "digital",
		})
		resp, err := http.Post(api.URL()+"/api/readings/scan", "application/json", bytes.NewReader(payload))
		Expect(err).NotTo(HaveOccurred())
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusCreated), string(body))

		var scanned reading.Record
		Expect(json.Unmarshal(body, &scanned)).To(Succeed())
		Expect(scanned.Value).To(Equal(12345.6))
		Expect(scanned.MeterType).To(Equal("digital"))
		Expect(scanned.HT).To(BeNil())
		Expect(ollama.ReceivedRequests()).To(HaveLen(2))
		Expect(filepath.Join(tempDir, "captures", scanned.CaptureID+".png")).To(BeAnExistingFile())

		// --- Step 2: latest readings ---
		resp, err = http.Get(api.URL() + "/api/readings/latest")
		Expect(err).NotTo(HaveOccurred())
		body, _ = io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var latest []reading.Record
		Expect(json.Unmarshal(body, &latest)).To(Succeed())
		Expect(latest).To(HaveLen(1))
		Expect(latest[0].MeterNumber).To(Equal("1EBZ0100507093"))
		Expect(latest[0].Value).To(Equal(12345.6))
		Expect(latest[0].CaptureID).To(Equal(scanned.CaptureID))

		// --- Step 3: the archived photo ---
		resp, err = http.Get(api.URL() + "/api/captures/" + scanned.CaptureID + "/image")
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
	})

	It("keeps nothing when the model cannot read the meter", func() {
		ollama.AppendHandlers(ollamaAnswer("Sorry, the display is not visible."))
		api.AppendHandlers(server.ServeHTTP, server.ServeHTTP)

		payload, _ := json.Marshal(map[string]string{
			"image":        base64.StdEncoding.EncodeToString(meterPhoto()),
			"content_type": "image/png",
		})
		resp, err := http.Post(api.URL()+"/api/readings/scan", "application/json", bytes.NewReader(payload))
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
		Expect(ollama.ReceivedRequests()).To(HaveLen(1))

		captures, _ := filepath.Glob(filepath.Join(tempDir, "captures", "*"))
		Expect(captures).To(BeEmpty())

		resp, err = http.Get(api.URL() + "/api/readings/latest")
		Expect(err).NotTo(HaveOccurred())
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(strings.TrimSpace(string(body))).To(Equal("[]"))
	})

	It("stores prices and answers the current one by validFrom", func() {
		api.AppendHandlers(server.ServeHTTP, server.ServeHTTP, server.ServeHTTP)

		for _, doc := range []string{
			`{"basePrice": 10, "workPrice": 30.5, "provider": "new", "type": "electricity", "validFrom": "2025-01-01"}`,
			`{"basePrice": 9, "workPrice": 28, "provider": "old", "type": "electricity", "validFrom": "2024-01-01"}`,
		} {
			resp, err := http.Post(api.URL()+"/api/prices", "application/json", strings.NewReader(doc))
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		}

		resp, err := http.Get(api.URL() + "/api/prices/electricity/current")
		Expect(err).NotTo(HaveOccurred())
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var price reading.UtilityPrice
		Expect(json.Unmarshal(body, &price)).To(Succeed())
		Expect(price.Provider).To(Equal("new"))
		Expect(price.WorkPrice).To(Equal(30.5))
	})
})

package reading

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/meter-tracker/internal/common"
)

var _ = Describe("InfluxStore", func() {
	var (
		server *ghttp.Server
		store  *InfluxStore
		point  Point
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var err error
		store, err = NewInfluxStore(server.URL(), "token", "home", "meters")
		Expect(err).NotTo(HaveOccurred())

		point = Record{
			MeterNumber: "123",
			Value:       54321.5,
			Unit:        "kWh",
			Confidence:  0.9,
			Timestamp:   time.Unix(1700000000, 0).UTC(),
		}.point()
	})

	AfterEach(func() {
		store.Close()
		server.Close()
	})

	It("requires url, org and bucket", func() {
		_, err := NewInfluxStore("", "token", "home", "meters")
		Expect(err).To(HaveOccurred())
	})

	Describe("WritePoint", func() {
		When("the server accepts the write", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodPost, "/api/v2/write"),
					ghttp.VerifyHeaderKV("Authorization", "Token token"),
					func(w http.ResponseWriter, r *http.Request) {
						Expect(r.URL.Query().Get("org")).To(Equal("home"))
						Expect(r.URL.Query().Get("bucket")).To(Equal("meters"))
						body, err := io.ReadAll(r.Body)
						Expect(err).NotTo(HaveOccurred())
						Expect(string(body)).To(HavePrefix("meter_reading,meter_number=123 "))
						Expect(string(body)).To(ContainSubstring("value=54321.5"))
						Expect(string(body)).To(ContainSubstring(`unit="kWh"`))
					},
					ghttp.RespondWith(http.StatusNoContent, nil),
				))
			})

			It("sends line protocol", func() {
				Expect(store.WritePoint(context.Background(), point)).To(Succeed())
				Expect(server.ReceivedRequests()).To(HaveLen(1))
			})
		})

		When("the server rejects the write", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusBadRequest, map[string]string{
					"code":    "invalid",
					"message": "bad line protocol",
				}))
			})

			It("reports the backend as unavailable", func() {
				err := store.WritePoint(context.Background(), point)
				Expect(errors.Is(err, common.ErrBackendUnavailable)).To(BeTrue())
			})
		})
	})
})

var _ = Describe("lastFlux", func() {
	It("builds a range, last and pivot query", func() {
		flux := lastFlux("meters", LastQuery{Measurement: "meter_reading"})
		Expect(flux).To(Equal(`from(bucket: "meters")
  |> range(start: -365d)
  |> filter(fn: (r) => r._measurement == "meter_reading")
  |> last()
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")`))
	})

	It("adds tag filters in key order", func() {
		flux := lastFlux("meters", LastQuery{
			Measurement: "meter_reading",
			Window:      36 * time.Hour,
			Tags:        map[string]string{"meter_type": "digital", "meter_number": `12"3`},
		})
		Expect(flux).To(ContainSubstring("range(start: -129600s)"))
		Expect(flux).To(ContainSubstring(`filter(fn: (r) => r["meter_number"] == "12\"3")` + "\n  |> filter(fn: (r) => r[\"meter_type\"] == \"digital\")"))
	})
})

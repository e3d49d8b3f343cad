package scanning

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/meter-tracker/internal/common"
)

type mockScanner struct {
	errs   []error
	result *Extraction
	calls  int
	closed bool
}

func (m *mockScanner) ScanMeter(ctx context.Context, imageData []byte, contentType string) (*Extraction, error) {
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	return m.result, nil
}

func (m *mockScanner) Close() error {
	m.closed = true
	return nil
}

var _ = Describe("Retrying", func() {
	var (
		inner   *mockScanner
		scanner *Retrying
		ctx     context.Context
		ext     *Extraction
		err     error
	)

	BeforeEach(func() {
		ctx = context.Background()
		inner = &mockScanner{result: &Extraction{MeterNumber: OCRValue{Value: "42", Confidence: 1}}}
		scanner = NewRetrying(inner, 3, time.Millisecond)
	})

	JustBeforeEach(func() {
		ext, err = scanner.ScanMeter(ctx, []byte("img"), "image/png")
	})

	When("the backend recovers", func() {
		BeforeEach(func() {
			inner.errs = []error{
				common.BackendUnavailable("down", nil),
				common.BackendUnavailable("still down", nil),
			}
		})

		It("returns the result", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(ext.MeterNumber.Value).To(Equal("42"))
			Expect(inner.calls).To(Equal(3))
		})
	})

	When("the backend stays down", func() {
		BeforeEach(func() {
			for i := 0; i < 10; i++ {
				inner.errs = append(inner.errs, common.BackendUnavailable("down", nil))
			}
		})

		It("gives up after the retry budget", func() {
			Expect(errors.Is(err, common.ErrBackendUnavailable)).To(BeTrue())
			Expect(inner.calls).To(Equal(4))
			Expect(ext).To(BeNil())
		})
	})

	When("the response has no structure", func() {
		BeforeEach(func() {
			inner.errs = []error{common.NoStructuredResult("prose", nil)}
		})

		It("does not retry", func() {
			Expect(errors.Is(err, common.ErrNoStructuredResult)).To(BeTrue())
			Expect(inner.calls).To(Equal(1))
		})
	})

	When("the context is already cancelled", func() {
		BeforeEach(func() {
			c, cancel := context.WithCancel(context.Background())
			cancel()
			ctx = c
			inner.errs = []error{common.BackendUnavailable("down", nil), common.BackendUnavailable("down", nil)}
		})

		It("stops retrying", func() {
			Expect(err).To(HaveOccurred())
			Expect(inner.calls).To(Equal(1))
		})
	})

	It("closes the wrapped scanner", func() {
		Expect(scanner.Close()).To(Succeed())
		Expect(inner.closed).To(BeTrue())
	})
})

package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/JohnPlummer/batch-scorer/dispatcher"
	"github.com/JohnPlummer/batch-scorer/scorer"
	"github.com/JohnPlummer/batch-scorer/server"
)

var _ = Describe("Server", func() {
	var (
		backend *stubBackend
		d       *dispatcher.Dispatcher
		cfg     server.Config
		handler http.Handler
		ctx     context.Context
		cancel  context.CancelFunc
		start   bool
	)

	BeforeEach(func() {
		backend = &stubBackend{health: scorer.HealthStatus{
			Healthy: true,
			Status:  "ok",
			Details: map[string]interface{}{"model": "gpt-4o-mini"},
		}}
		cfg = server.Config{}
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(func() { cancel() })
		start = true
		d = nil
	})

	JustBeforeEach(func() {
		if d == nil {
			d = dispatcher.New(backend)
		}
		if start {
			d.Start(ctx)
		}
		handler = server.New(cfg, d, backend).Handler()
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	decodeResults := func(rec *httptest.ResponseRecorder) []scorer.Result {
		var results []scorer.Result
		Expect(json.Unmarshal(rec.Body.Bytes(), &results)).To(Succeed())
		return results
	}

	decodeError := func(rec *httptest.ResponseRecorder) string {
		var body map[string]string
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		return body["error"]
	}

	Describe("POST /", func() {
		It("should return one result per record in order", func() {
			rec := post(`[{"text":"Markets crashed."},{"text":"Stocks rallied and the British pound gained."},{"text":"Shares were flat."}]`)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			results := decodeResults(rec)
			Expect(results).To(HaveLen(3))
			Expect(results[0].Label).To(Equal("negative"))
			Expect(results[1].Label).To(Equal("positive"))
			Expect(results[2].Label).To(Equal("neutral"))
			Expect(backend.Calls()).To(HaveLen(1))
		})

		It("should return label and score fields only", func() {
			rec := post(`[{"text":"The economy showed significant growth."}]`)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`[{"label":"positive","score":0.5}]`))
		})

		It("should answer an empty array with an empty array", func() {
			rec := post(`[]`)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(strings.TrimSpace(rec.Body.String())).To(Equal("[]"))
			Expect(backend.Calls()).To(BeEmpty())
		})

		It("should ignore extra fields", func() {
			rec := post(`[{"text":"Markets crashed.","source":"wire"}]`)
			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("should serve concurrent callers their own results", func() {
			bodies := []string{
				`[{"text":"Stocks rallied and the British pound gained."}]`,
				`[{"text":"The economy showed significant growth."}]`,
				`[{"text":"Markets crashed."},{"text":"Shares were flat."}]`,
			}
			recs := make([]*httptest.ResponseRecorder, len(bodies))

			var wg sync.WaitGroup
			for i, body := range bodies {
				wg.Add(1)
				go func(i int, body string) {
					defer wg.Done()
					defer GinkgoRecover()
					recs[i] = post(body)
				}(i, body)
			}
			wg.Wait()

			Expect(decodeResults(recs[0])).To(Equal([]scorer.Result{{Label: "positive", Score: 0.5}}))
			Expect(decodeResults(recs[1])).To(Equal([]scorer.Result{{Label: "positive", Score: 0.5}}))
			Expect(decodeResults(recs[2])).To(Equal([]scorer.Result{
				{Label: "negative", Score: 0.5},
				{Label: "neutral", Score: 0.51},
			}))
			Expect(backend.Calls()).To(HaveLen(3))
		})

		DescribeTable("malformed bodies",
			func(body string) {
				rec := post(body)
				Expect(rec.Code).To(Equal(http.StatusBadRequest))
				Expect(decodeError(rec)).To(ContainSubstring("malformed request"))
				Expect(backend.Calls()).To(BeEmpty())
			},
			Entry("not JSON", `not json`),
			Entry("empty body", ``),
			Entry("object instead of array", `{"text":"a"}`),
			Entry("null", `null`),
			Entry("missing text field", `[{"body":"a"}]`),
			Entry("null record", `[null]`),
			Entry("null text", `[{"text":null}]`),
			Entry("non-string text", `[{"text":42}]`),
			Entry("trailing data", `[{"text":"a"}] x`),
			Entry("second array", `[{"text":"a"}] [{"text":"b"}]`),
			Entry("trailing object", `[{"text":"a"}] {}`),
		)

		It("should reject oversized bodies", func() {
			rec := post("[" + strings.Repeat(" ", 11<<20) + "]")
			Expect(rec.Code).To(Equal(http.StatusRequestEntityTooLarge))
		})

		Context("when the backend fails", func() {
			BeforeEach(func() {
				backend.err = errors.New("model unavailable")
			})

			It("should return 502 and keep serving", func() {
				rec := post(`[{"text":"a"}]`)
				Expect(rec.Code).To(Equal(http.StatusBadGateway))
				Expect(decodeError(rec)).To(ContainSubstring("model unavailable"))

				backend.mu.Lock()
				backend.err = nil
				backend.mu.Unlock()

				Expect(post(`[{"text":"a"}]`).Code).To(Equal(http.StatusOK))
			})
		})

		It("should accept trailing whitespace", func() {
			rec := post("[{\"text\":\"a\"}]\n\t ")
			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		Context("when a text is too long to score", func() {
			BeforeEach(func() {
				backend.err = fmt.Errorf("%w: text 0: content too long (600 chars, maximum 512)", scorer.ErrContentTooLong)
			})

			It("should return 422 instead of a gateway error", func() {
				rec := post(`[{"text":"a"}]`)
				Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
				Expect(decodeError(rec)).To(ContainSubstring("content exceeds maximum length"))
			})
		})

		Context("when the caller's deadline passes", func() {
			BeforeEach(func() {
				cfg.RequestTimeout = 20 * time.Millisecond
				backend.release = make(chan struct{})
				DeferCleanup(func() { close(backend.release) })
			})

			It("should return 504", func() {
				rec := post(`[{"text":"slow"}]`)
				Expect(rec.Code).To(Equal(http.StatusGatewayTimeout))
			})
		})

		Context("when the queue is full", func() {
			BeforeEach(func() {
				start = false
				d = dispatcher.New(backend, dispatcher.WithQueueSize(1))
				_, err := d.Enqueue([]string{"waiting"})
				Expect(err).ToNot(HaveOccurred())
			})

			It("should return 503", func() {
				rec := post(`[{"text":"a"}]`)
				Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
				Expect(decodeError(rec)).To(ContainSubstring("queue is full"))
			})
		})

		Context("when the dispatcher has stopped", func() {
			BeforeEach(func() {
				start = false
				d = dispatcher.New(backend)
				stopped, stop := context.WithCancel(context.Background())
				stop()
				Expect(d.Run(stopped)).To(MatchError(context.Canceled))
			})

			It("should return 503", func() {
				Expect(post(`[{"text":"a"}]`).Code).To(Equal(http.StatusServiceUnavailable))
			})

			It("should report unhealthy", func() {
				req := httptest.NewRequest(http.MethodGet, "/health", nil)
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, req)
				Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			})
		})
	})

	Describe("routing", func() {
		It("should reject other methods on /", func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusMethodNotAllowed))
		})

		It("should not score on other paths", func() {
			req := httptest.NewRequest(http.MethodPost, "/score", strings.NewReader(`[]`))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /health", func() {
		It("should report backend and dispatcher state", func() {
			Eventually(d.State).Should(Equal(dispatcher.StateWaiting))

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var body struct {
				Healthy    bool                   `json:"healthy"`
				Status     string                 `json:"status"`
				Backend    map[string]interface{} `json:"backend"`
				Dispatcher struct {
					State         string `json:"state"`
					QueueCapacity int    `json:"queue_capacity"`
				} `json:"dispatcher"`
			}
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Healthy).To(BeTrue())
			Expect(body.Status).To(Equal("ok"))
			Expect(body.Backend).To(HaveKeyWithValue("model", "gpt-4o-mini"))
			Expect(body.Dispatcher.State).To(Equal("waiting"))
			Expect(body.Dispatcher.QueueCapacity).To(Equal(dispatcher.DefaultQueueSize))
		})

		Context("when the backend is unhealthy", func() {
			BeforeEach(func() {
				backend.health = scorer.HealthStatus{Healthy: false, Status: "circuit open (ok)"}
			})

			It("should return 503", func() {
				req := httptest.NewRequest(http.MethodGet, "/health", nil)
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, req)
				Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
				Expect(rec.Body.String()).To(ContainSubstring("circuit open"))
			})
		})
	})

	Describe("GET /metrics", func() {
		It("should expose Prometheus metrics", func() {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("go_goroutines"))
		})
	})

	Describe("request IDs", func() {
		It("should echo the caller's request ID", func() {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`[]`))
			req.Header.Set(server.RequestIDHeader, "req-123")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			Expect(rec.Header().Get(server.RequestIDHeader)).To(Equal("req-123"))
		})

		It("should generate one when missing", func() {
			rec := post(`[]`)
			Expect(rec.Header().Get(server.RequestIDHeader)).ToNot(BeEmpty())
		})
	})
})

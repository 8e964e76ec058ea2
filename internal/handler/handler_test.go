package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/uptime-monitor/internal/endpoint"
	"github.com/angeloszaimis/uptime-monitor/internal/fleet"
	"github.com/angeloszaimis/uptime-monitor/internal/handler"
	"github.com/angeloszaimis/uptime-monitor/internal/healthcheck"
	"github.com/angeloszaimis/uptime-monitor/internal/proxy"
)

type stubProber struct {
	calls atomic.Int64
	delay time.Duration
	fail  bool
}

func (s *stubProber) Probe(ctx context.Context, target string, timeout time.Duration) (healthcheck.Outcome, error) {
	s.calls.Add(1)
	if err := healthcheck.ValidateTarget(target); err != nil {
		return healthcheck.Outcome{}, err
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	ms := int64(42)
	if s.fail || strings.Contains(target, "down") {
		return healthcheck.Outcome{
			Status:         healthcheck.StatusConnectionRefused,
			ResponseTimeMs: &ms,
			CheckedAt:      time.Now(),
			Error:          "connection refused",
			ErrorType:      "*net.OpError",
			Method:         healthcheck.MethodGet,
		}, nil
	}
	return healthcheck.Outcome{
		Status:         healthcheck.StatusOnline,
		StatusCode:     200,
		StatusText:     "OK",
		ResponseTimeMs: &ms,
		CheckedAt:      time.Now(),
		Method:         healthcheck.MethodHead,
		Headers:        &healthcheck.ResponseHeaders{ContentType: "text/html", Server: "nginx"},
	}, nil
}

func decode(rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
	return body
}

var _ = Describe("Handler", func() {
	var (
		h         *handler.Handler
		prober    *stubProber
		scheduler *fleet.Scheduler
		log       *slog.Logger
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		prober = &stubProber{}

		registry, err := endpoint.NewRegistry([]endpoint.Endpoint{
			{ID: 1, Name: "Main", URL: "http://main.test", Location: "DE"},
			{ID: 2, Name: "Backup", URL: "http://down.test"},
		})
		Expect(err).NotTo(HaveOccurred())

		scheduler = fleet.NewScheduler(registry, prober, fleet.Options{}, log, nil)
		px := proxy.New(nil, proxy.Options{}, log, nil)
		h = handler.New(log, prober, time.Second, scheduler, px, nil)
	})

	Describe("Check", func() {
		It("should report an online target", func() {
			rec := httptest.NewRecorder()
			h.Check(rec, httptest.NewRequest(http.MethodGet, "/check?url=http://up.test", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))

			body := decode(rec)
			Expect(body["status"]).To(Equal("online"))
			Expect(body["statusCode"]).To(BeEquivalentTo(200))
			Expect(body["statusText"]).To(Equal("OK"))
			Expect(body["responseTime"]).To(BeEquivalentTo(42))
			Expect(body).To(HaveKey("timestamp"))
			Expect(body["headers"]).To(HaveKeyWithValue("server", "nginx"))
			Expect(body).NotTo(HaveKey("error"))
		})

		It("should answer 200 for an unreachable target", func() {
			rec := httptest.NewRecorder()
			h.Check(rec, httptest.NewRequest(http.MethodPost, "/check?url=http://down.test", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			body := decode(rec)
			Expect(body["status"]).To(Equal("connection_refused"))
			Expect(body["error"]).To(Equal("connection refused"))
			Expect(body["errorType"]).To(Equal("*net.OpError"))
			Expect(body).NotTo(HaveKey("statusCode"))
		})

		It("should require the url parameter", func() {
			rec := httptest.NewRecorder()
			h.Check(rec, httptest.NewRequest(http.MethodGet, "/check", nil))

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(rec)).To(Equal(map[string]any{"error": "URL parameter is required"}))
		})

		It("should reject a malformed url", func() {
			rec := httptest.NewRecorder()
			h.Check(rec, httptest.NewRequest(http.MethodGet, "/check?url=ftp://files.test", nil))

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should answer preflight requests", func() {
			rec := httptest.NewRecorder()
			h.Check(rec, httptest.NewRequest(http.MethodOptions, "/check", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Access-Control-Allow-Methods")).To(Equal("GET, POST, OPTIONS"))
		})

		It("should reject other methods", func() {
			rec := httptest.NewRecorder()
			h.Check(rec, httptest.NewRequest(http.MethodDelete, "/check?url=http://up.test", nil))

			Expect(rec.Code).To(Equal(http.StatusMethodNotAllowed))
		})

		It("should share one probe between concurrent checks of the same url", func() {
			prober.delay = 100 * time.Millisecond

			var wg sync.WaitGroup
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					rec := httptest.NewRecorder()
					h.Check(rec, httptest.NewRequest(http.MethodGet, "/check?url=http://up.test", nil))
					Expect(rec.Code).To(Equal(http.StatusOK))
				}()
			}
			wg.Wait()

			Expect(prober.calls.Load()).To(BeNumerically("<", 5))
		})
	})

	Describe("Proxy", func() {
		It("should serve the rewritten page with framing allowed", func() {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.Header().Set("X-Frame-Options", "DENY")
				w.WriteHeader(http.StatusInternalServerError)
				io.WriteString(w, `<html><head></head><body><a href="/x">x</a></body></html>`)
			}))
			defer upstream.Close()

			rec := httptest.NewRecorder()
			h.Proxy(rec, httptest.NewRequest(http.MethodGet, "/proxy?url="+upstream.URL, nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("text/html"))
			Expect(rec.Header().Get("X-Frame-Options")).To(Equal("ALLOWALL"))
			Expect(rec.Header().Get("Content-Security-Policy")).To(Equal("frame-ancestors *"))
			Expect(rec.Body.String()).To(ContainSubstring(`<base href="` + upstream.URL + `">`))
			Expect(rec.Body.String()).To(ContainSubstring(`href="/proxy?url=`))
		})

		It("should render an error page when the upstream is unreachable", func() {
			rec := httptest.NewRecorder()
			h.Proxy(rec, httptest.NewRequest(http.MethodGet, "/proxy?url=http://127.0.0.1:1/", nil))

			Expect(rec.Code).To(Equal(http.StatusBadGateway))
			Expect(rec.Header().Get("Content-Type")).To(HavePrefix("text/html"))
			Expect(rec.Body.String()).To(ContainSubstring("Proxy Error"))
			Expect(rec.Body.String()).To(ContainSubstring("http://127.0.0.1:1/"))
		})

		It("should require the url parameter", func() {
			rec := httptest.NewRecorder()
			h.Proxy(rec, httptest.NewRequest(http.MethodGet, "/proxy", nil))

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("URL parameter is required"))
		})

		It("should answer preflight requests", func() {
			rec := httptest.NewRecorder()
			h.Proxy(rec, httptest.NewRequest(http.MethodOptions, "/proxy", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("Servers", func() {
		It("should list the registry", func() {
			rec := httptest.NewRecorder()
			h.Servers(rec, httptest.NewRequest(http.MethodGet, "/servers", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			body := decode(rec)
			Expect(body["success"]).To(BeTrue())
			Expect(body["count"]).To(BeEquivalentTo(2))

			servers := body["servers"].([]any)
			first := servers[0].(map[string]any)
			Expect(first).To(HaveKeyWithValue("name", "Main"))
			Expect(first).To(HaveKeyWithValue("location", "DE"))
		})

		It("should echo a created server", func() {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/servers", bytes.NewBufferString(`{"name":"New","url":"http://new.test"}`))
			h.Servers(rec, req)

			Expect(rec.Code).To(Equal(http.StatusCreated))
			body := decode(rec)
			Expect(body["message"]).To(Equal("Server added successfully"))
			Expect(body["server"]).To(HaveKeyWithValue("name", "New"))

			Expect(scheduler.Registry().Len()).To(Equal(2))
		})

		It("should reject a malformed body", func() {
			rec := httptest.NewRecorder()
			h.Servers(rec, httptest.NewRequest(http.MethodPost, "/servers", bytes.NewBufferString("{")))

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should echo the id on update and delete", func() {
			for method, message := range map[string]string{
				http.MethodPut:    "Server updated successfully",
				http.MethodDelete: "Server deleted successfully",
			} {
				rec := httptest.NewRecorder()
				h.Servers(rec, httptest.NewRequest(method, "/servers?id=7", nil))

				Expect(rec.Code).To(Equal(http.StatusOK))
				body := decode(rec)
				Expect(body["serverId"]).To(Equal("7"))
				Expect(body["message"]).To(Equal(message))
			}
		})

		It("should reject other methods", func() {
			rec := httptest.NewRecorder()
			h.Servers(rec, httptest.NewRequest(http.MethodPatch, "/servers", nil))

			Expect(rec.Code).To(Equal(http.StatusMethodNotAllowed))
			Expect(decode(rec)).To(Equal(map[string]any{"error": "Method not allowed"}))
		})
	})

	Describe("Stats", func() {
		statsRequest := func(id string) *http.Request {
			req := httptest.NewRequest(http.MethodGet, "/stats/"+id, nil)
			req.SetPathValue("serverId", id)
			return req
		}

		It("should report the response-time window of an endpoint", func() {
			_, err := scheduler.Trigger(context.Background())
			Expect(err).NotTo(HaveOccurred())

			rec := httptest.NewRecorder()
			h.Stats(rec, statsRequest("1"))

			Expect(rec.Code).To(Equal(http.StatusOK))
			body := decode(rec)
			Expect(body["success"]).To(BeTrue())
			Expect(body["serverId"]).To(BeEquivalentTo(1))
			Expect(body["status"]).To(Equal("online"))

			stats := body["stats"].(map[string]any)
			Expect(stats["current"]).To(BeEquivalentTo(42))
			Expect(stats["peak"]).To(BeEquivalentTo(42))
			Expect(stats["average"]).To(BeEquivalentTo(42))
			Expect(stats).To(HaveKey("timestamp"))
			Expect(body).NotTo(HaveKey("requests"))
		})

		It("should reject a non-numeric id", func() {
			rec := httptest.NewRecorder()
			h.Stats(rec, statsRequest("abc"))

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should report unknown endpoints", func() {
			rec := httptest.NewRecorder()
			h.Stats(rec, statsRequest("99"))

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Status", func() {
		It("should report every server as checking before the first cycle", func() {
			rec := httptest.NewRecorder()
			h.Status(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			body := decode(rec)
			servers := body["servers"].([]any)
			Expect(servers).To(HaveLen(2))
			for _, s := range servers {
				Expect(s).To(HaveKeyWithValue("status", "checking"))
			}
			Expect(body).NotTo(HaveKey("feed"))
			Expect(body).NotTo(HaveKey("upstreams"))
		})

		It("should report the breaker state of proxied hosts", func() {
			h.Proxy(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/proxy?url=http://127.0.0.1:1/", nil))

			rec := httptest.NewRecorder()
			h.Status(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

			Expect(decode(rec)["upstreams"]).To(Equal(map[string]any{"127.0.0.1:1": "closed"}))
		})

		It("should join the latest outcomes with the registry", func() {
			_, err := scheduler.Trigger(context.Background())
			Expect(err).NotTo(HaveOccurred())

			rec := httptest.NewRecorder()
			h.Status(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

			body := decode(rec)
			servers := body["servers"].([]any)
			Expect(servers[0]).To(HaveKeyWithValue("name", "Main"))
			Expect(servers[0]).To(HaveKeyWithValue("status", "online"))
			Expect(servers[1]).To(HaveKeyWithValue("status", "connection_refused"))

			stats := body["stats"].(map[string]any)
			Expect(stats["onlineCount"]).To(BeEquivalentTo(1))
			Expect(stats["issueCount"]).To(BeEquivalentTo(1))
			Expect(stats["avgResponseTimeMs"]).To(BeEquivalentTo(42))
		})
	})

	Describe("Refresh", func() {
		It("should run a cycle", func() {
			rec := httptest.NewRecorder()
			h.Refresh(rec, httptest.NewRequest(http.MethodPost, "/refresh", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKey("cycleId"))
			Expect(prober.calls.Load()).To(Equal(int64(2)))
		})

		It("should answer 409 while a cycle is running", func() {
			prober.delay = 200 * time.Millisecond
			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(done)
				_, _ = scheduler.Trigger(context.Background())
			}()
			Eventually(scheduler.Running).Should(BeTrue())

			rec := httptest.NewRecorder()
			h.Refresh(rec, httptest.NewRequest(http.MethodPost, "/refresh", nil))

			Expect(rec.Code).To(Equal(http.StatusConflict))
			Eventually(done).Should(BeClosed())
		})

		It("should only accept POST", func() {
			rec := httptest.NewRecorder()
			h.Refresh(rec, httptest.NewRequest(http.MethodGet, "/refresh", nil))

			Expect(rec.Code).To(Equal(http.StatusMethodNotAllowed))
		})
	})

	Describe("Health", func() {
		It("should report ok", func() {
			rec := httptest.NewRecorder()
			h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKeyWithValue("status", "ok"))
		})
	})

	Describe("Logging", func() {
		It("should log the request with its status", func() {
			var buf bytes.Buffer
			logged := handler.Logging(slog.New(slog.NewTextHandler(&buf, nil)), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			}))

			req := httptest.NewRequest(http.MethodGet, "/anything", nil)
			req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
			logged.ServeHTTP(httptest.NewRecorder(), req)

			Expect(buf.String()).To(ContainSubstring("status=418"))
			Expect(buf.String()).To(ContainSubstring("from=203.0.113.7"))
			Expect(buf.String()).To(ContainSubstring("path=/anything"))
		})
	})
})


package feed_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/net/websocket"

	"github.com/angeloszaimis/uptime-monitor/internal/feed"
)

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

var _ = Describe("ParseSample", func() {
	DescribeTable("should accept numeric messages",
		func(msg string, expected float64) {
			v, err := feed.ParseSample(msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(expected))
		},
		Entry("integer", "42", 42.0),
		Entry("float with whitespace", " 12.5\n", 12.5),
		Entry("requests object", `{"requests": 300}`, 300.0),
		Entry("value object", `{"value": "7"}`, 7.0),
		Entry("current object", `{"current": 9, "other": 1}`, 9.0),
	)

	DescribeTable("should reject anything else",
		func(msg string) {
			_, err := feed.ParseSample(msg)
			Expect(err).To(HaveOccurred())
		},
		Entry("empty", ""),
		Entry("text", "hello"),
		Entry("object without a known key", `{"rate": 1}`),
		Entry("negative", "-5"),
		Entry("non-numeric value", `{"requests": "lots"}`),
	)
})

var _ = Describe("State", func() {
	It("should name every state", func() {
		Expect(feed.StateConnecting.String()).To(Equal("connecting"))
		Expect(feed.StateOpen.String()).To(Equal("open"))
		Expect(feed.StateClosed.String()).To(Equal("closed"))
		Expect(feed.State(99).String()).To(Equal("unknown"))
	})
})

var _ = Describe("Client", func() {
	var (
		log    *slog.Logger
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(cancel)
	})

	run := func(client *feed.Client) chan error {
		done := make(chan error, 1)
		go func() {
			done <- client.Run(ctx)
		}()
		return done
	}

	It("should reject an invalid URL", func() {
		_, err := feed.New(feed.Options{URL: "://bad", Origin: "http://localhost/"}, log)
		Expect(err).To(HaveOccurred())
	})

	It("should start closed", func() {
		client, err := feed.New(feed.Options{URL: "ws://127.0.0.1:1/feed", Origin: "http://localhost/"}, log)
		Expect(err).NotTo(HaveOccurred())
		Expect(client.State()).To(Equal(feed.StateClosed))
	})

	It("should fold samples into the window while open", func() {
		server := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
			for _, msg := range []string{"10", `{"requests": 30}`, "not a number", "20"} {
				if err := websocket.Message.Send(ws, msg); err != nil {
					return
				}
			}
			var discard string
			for websocket.Message.Receive(ws, &discard) == nil {
			}
		}))
		defer server.Close()

		client, err := feed.New(feed.Options{
			URL:        wsURL(server),
			Origin:     "http://localhost/",
			EndpointID: 3,
		}, log)
		Expect(err).NotTo(HaveOccurred())
		Expect(client.EndpointID()).To(Equal(3))

		done := run(client)

		Eventually(client.State).Should(Equal(feed.StateOpen))
		Eventually(func() int { return client.Summary().Count }).Should(Equal(3))

		summary := client.Summary()
		Expect(summary.Current).To(Equal(20.0))
		Expect(summary.Peak).To(Equal(30.0))
		Expect(summary.Average).To(Equal(20.0))

		cancel()
		Eventually(done).Should(Receive(BeNil()))
		Expect(client.State()).To(Equal(feed.StateClosed))
	})

	It("should reconnect after the connection drops", func() {
		server := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
			websocket.Message.Send(ws, "5")
		}))
		defer server.Close()

		client, err := feed.New(feed.Options{
			URL:            wsURL(server),
			Origin:         "http://localhost/",
			ReconnectDelay: 20 * time.Millisecond,
		}, log)
		Expect(err).NotTo(HaveOccurred())

		done := run(client)

		Eventually(func() int { return client.Summary().Count }).Should(BeNumerically(">=", 3))

		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})

	It("should keep retrying while the feed is unreachable", func() {
		client, err := feed.New(feed.Options{
			URL:            "ws://127.0.0.1:1/feed",
			Origin:         "http://localhost/",
			ReconnectDelay: 10 * time.Millisecond,
		}, log)
		Expect(err).NotTo(HaveOccurred())

		done := run(client)
		Consistently(done, 100*time.Millisecond).ShouldNot(Receive())

		cancel()
		Eventually(done).Should(Receive(BeNil()))
		Expect(client.Summary().Count).To(BeZero())
	})
})

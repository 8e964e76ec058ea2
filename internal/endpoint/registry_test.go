package endpoint_test

import (
	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"

	"github.com/angeloszaimis/uptime-monitor/internal/endpoint"
)

var _ = Describe("Registry", func() {
	var fsys afero.Fs

	BeforeEach(func() {
		fsys = afero.NewMemMapFs()
	})

	Describe("Load", func() {
		It("should read endpoints in file order", func() {
			Expect(afero.WriteFile(fsys, "/endpoints.yaml", []byte(`
endpoints:
  - id: 7
    name: Docs
    url: https://docs.example.com
    location: DE
    region: Frankfurt
  - id: 3
    name: API
    url: http://api.example.com:8080/health
    ws_url: wss://api.example.com/feed
`), 0644)).To(Succeed())

			reg, err := endpoint.Load(fsys, "/endpoints.yaml")
			Expect(err).NotTo(HaveOccurred())

			want := []endpoint.Endpoint{
				{ID: 7, Name: "Docs", URL: "https://docs.example.com", Location: "DE", Region: "Frankfurt"},
				{ID: 3, Name: "API", URL: "http://api.example.com:8080/health", WSURL: "wss://api.example.com/feed"},
			}
			Expect(cmp.Diff(want, reg.All())).To(BeEmpty())
		})

		It("should fall back to the built-in registry when the file is missing", func() {
			reg, err := endpoint.Load(fsys, "/missing.yaml")
			Expect(err).NotTo(HaveOccurred())
			Expect(reg.Len()).To(Equal(10))

			first := reg.All()[0]
			Expect(first.Name).To(Equal("Main Server"))
			Expect(first.URL).To(Equal("http://147.135.252.68:20050/"))
		})

		It("should fail on malformed YAML", func() {
			Expect(afero.WriteFile(fsys, "/bad.yaml", []byte("endpoints: [\n"), 0644)).To(Succeed())

			_, err := endpoint.Load(fsys, "/bad.yaml")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("NewRegistry", func() {
		It("should reject an empty list", func() {
			_, err := endpoint.NewRegistry(nil)
			Expect(err).To(HaveOccurred())
		})

		It("should reject duplicate ids", func() {
			_, err := endpoint.NewRegistry([]endpoint.Endpoint{
				{ID: 1, Name: "a", URL: "https://a.example.com"},
				{ID: 1, Name: "b", URL: "https://b.example.com"},
			})
			Expect(err).To(MatchError(ContainSubstring("duplicate id 1")))
		})

		DescribeTable("should reject invalid endpoints",
			func(e endpoint.Endpoint) {
				_, err := endpoint.NewRegistry([]endpoint.Endpoint{e})
				Expect(err).To(HaveOccurred())
			},
			Entry("missing id", endpoint.Endpoint{Name: "a", URL: "https://a.example.com"}),
			Entry("missing name", endpoint.Endpoint{ID: 1, URL: "https://a.example.com"}),
			Entry("missing url", endpoint.Endpoint{ID: 1, Name: "a"}),
			Entry("non-http url", endpoint.Endpoint{ID: 1, Name: "a", URL: "ftp://a.example.com"}),
			Entry("http websocket url", endpoint.Endpoint{ID: 1, Name: "a", URL: "https://a.example.com", WSURL: "http://a.example.com"}),
		)

		It("should not share its backing slice with the caller", func() {
			eps := []endpoint.Endpoint{{ID: 1, Name: "a", URL: "https://a.example.com"}}
			reg, err := endpoint.NewRegistry(eps)
			Expect(err).NotTo(HaveOccurred())

			eps[0].Name = "changed"
			all := reg.All()
			all[0].Name = "changed too"

			got, ok := reg.Get(1)
			Expect(ok).To(BeTrue())
			Expect(got.Name).To(Equal("a"))
		})
	})

	Describe("Get", func() {
		It("should look endpoints up by id", func() {
			reg, err := endpoint.Default()
			Expect(err).NotTo(HaveOccurred())

			e, ok := reg.Get(3)
			Expect(ok).To(BeTrue())
			Expect(e.Name).To(Equal("GitHub"))

			_, ok = reg.Get(99)
			Expect(ok).To(BeFalse())
		})
	})

	DescribeTable("ValidateWebsocketURL",
		func(raw string, valid bool) {
			err := endpoint.ValidateWebsocketURL(raw)
			if valid {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(HaveOccurred())
			}
		},
		Entry("empty", "", true),
		Entry("ws", "ws://feed.example.com/live", true),
		Entry("wss", "wss://feed.example.com/live", true),
		Entry("http scheme", "http://feed.example.com/live", false),
		Entry("missing host", "ws:///live", false),
	)
})

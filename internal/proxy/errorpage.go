package proxy

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/angeloszaimis/uptime-monitor/internal/healthcheck"
)

var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="UTF-8">
    <title>Proxy Error</title>
    <style>
      body {
        font-family: system-ui, sans-serif;
        padding: 40px;
        background: #1a1a1a;
        color: white;
        display: flex;
        align-items: center;
        justify-content: center;
        min-height: 100vh;
        margin: 0;
      }
      .error-box {
        background: #2a2a2a;
        border: 2px solid #ff4444;
        border-radius: 12px;
        padding: 30px;
        max-width: 500px;
        text-align: center;
      }
      h1 { color: #ff4444; margin: 0 0 20px 0; }
      p { color: #999; line-height: 1.6; word-break: break-all; }
      a { color: #4a9eff; text-decoration: none; }
    </style>
  </head>
  <body>
    <div class="error-box">
      <h1>&#9888; Proxy Error</h1>
      <p><strong>Cannot load:</strong> {{.URL}}</p>
      <p>Error: {{.Message}}</p>
      {{- if .Link}}
      <p><a href="{{.Link}}" target="_blank" rel="noopener">Open directly in new tab &rarr;</a></p>
      {{- end}}
    </div>
  </body>
</html>
`))

type errorPageData struct {
	URL     string
	Message string
	Link    string
}

// WriteErrorPage renders the styled failure card for target with status 502.
// The direct link is omitted when target is not an http(s) URL.
func WriteErrorPage(w http.ResponseWriter, target string, err error) {
	data := errorPageData{
		URL:     target,
		Message: err.Error(),
	}
	if healthcheck.ValidateTarget(target) == nil {
		data.Link = target
	}

	var buf bytes.Buffer
	if execErr := errorPage.Execute(&buf, data); execErr != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	w.Write(buf.Bytes())
}

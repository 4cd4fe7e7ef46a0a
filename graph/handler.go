package graph

import (
	"encoding/json"
	"html/template"
	"net/http"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  {{if .Refresh}}<meta http-equiv="refresh" content="{{.Refresh}}">{{end}}
</head>
<body>
  <pre id="diagram" class="mermaid"></pre>
  <script type="module">
    import mermaid from 'https://cdn.jsdelivr.net/npm/mermaid@11/dist/mermaid.esm.min.mjs';
    mermaid.initialize({ startOnLoad: false, maxTextSize: {{.MaxTextSize}} });
    const { svg } = await mermaid.render('mermaid-svg-id', {{.DiagramJSON}});
    document.getElementById('diagram').outerHTML = svg;
  </script>
</body>
</html>
`

var pageTmpl = template.Must(template.New("page").Parse(pageTemplate))

const defaultMaxTextSize = 100000

type pageConfig struct {
	maxTextSize    int
	refreshSeconds int
}

// PageOption configures NewPageHandler behavior.
type PageOption func(*pageConfig)

// WithMaxTextSize sets Mermaid's maxTextSize value used by the page.
// Values <= 0 are ignored and default to 100000.
func WithMaxTextSize(maxTextSize int) PageOption {
	return func(cfg *pageConfig) {
		if maxTextSize > 0 {
			cfg.maxTextSize = maxTextSize
		}
	}
}

// WithAutoRefresh makes the page reload itself every interval seconds, so
// the diagram tracks state transitions while the rollout is in flight.
// Values <= 0 disable refreshing.
func WithAutoRefresh(seconds int) PageOption {
	return func(cfg *pageConfig) {
		if seconds > 0 {
			cfg.refreshSeconds = seconds
		}
	}
}

type pageData struct {
	Title       string
	DiagramJSON template.JS
	MaxTextSize int
	Refresh     int
}

// NewPageHandler creates an HTTP handler that serves an HTML page rendering
// the Mermaid diagram returned by source. The source is called per request,
// so a func backed by a live recorder reflects the current node states.
func NewPageHandler(title string, source func() string, opts ...PageOption) http.Handler {
	cfg := pageConfig{
		maxTextSize: defaultMaxTextSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		diagramJSON, err := json.Marshal(source())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = pageTmpl.Execute(w, pageData{
			Title:       title,
			MaxTextSize: cfg.maxTextSize,
			Refresh:     cfg.refreshSeconds,
			// json.Marshal returns a valid JavaScript string literal for the diagram source.
			DiagramJSON: template.JS(string(diagramJSON)),
		})
	})
}

package graph

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
)

func TestNewPageHandler(t *testing.T) {
	g := New()
	g.Add("node")
	g.Add("wallet", "node")
	diagram := g.RenderTD(map[string]string{"node": "Ready"})

	type tc struct {
		name     string
		title    string
		source   func() string
		opts     []PageOption
		validate func(t *testing.T, rec *httptest.ResponseRecorder)
	}

	cases := []tc{
		{
			name:   "serves-html",
			title:  "Devnet Readiness",
			source: func() string { return diagram },
			validate: func(t *testing.T, rec *httptest.ResponseRecorder) {
				body := rec.Body.String()
				if rec.Code != http.StatusOK {
					t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
				}
				if rec.Header().Get("Content-Type") != "text/html; charset=utf-8" {
					t.Fatalf("unexpected content type: %q", rec.Header().Get("Content-Type"))
				}
				if !strings.Contains(body, "<title>Devnet Readiness</title>") {
					t.Fatalf("expected title in body")
				}
				if !strings.Contains(body, "mermaid.render('mermaid-svg-id',") {
					t.Fatalf("expected mermaid render call in body")
				}
				if !regexp.MustCompile(`maxTextSize:\s*100000`).MatchString(body) {
					t.Fatalf("expected default maxTextSize in body")
				}
			},
		},
		{
			name:   "embeds-diagram-as-escaped-js-string",
			title:  "App<title>",
			source: func() string { return diagram },
			validate: func(t *testing.T, rec *httptest.ResponseRecorder) {
				body := rec.Body.String()
				if !strings.Contains(body, "App&lt;title&gt;") {
					t.Fatalf("expected escaped title in body")
				}
				if !strings.Contains(body, `"graph TD\n`) {
					t.Fatalf("expected escaped diagram string in body")
				}
				if strings.Contains(body, "mermaid.render('mermaid-svg-id', \"graph TD\n") {
					t.Fatalf("unexpected raw multiline diagram string in body")
				}
			},
		},
		{
			name:   "calls-source-per-request",
			title:  "Live",
			source: func() string { return g.RenderTD(map[string]string{"node": "Ready", "wallet": "Probing"}) },
			validate: func(t *testing.T, rec *httptest.ResponseRecorder) {
				if !strings.Contains(rec.Body.String(), `wallet`) {
					t.Fatalf("expected current diagram in body")
				}
			},
		},
		{
			name:   "overrides-max-text-size",
			title:  "Devnet",
			source: func() string { return diagram },
			opts:   []PageOption{WithMaxTextSize(2048)},
			validate: func(t *testing.T, rec *httptest.ResponseRecorder) {
				if !regexp.MustCompile(`maxTextSize:\s*2048`).MatchString(rec.Body.String()) {
					t.Fatalf("expected custom maxTextSize in body")
				}
			},
		},
		{
			name:   "invalid-max-text-size-uses-default",
			title:  "Devnet",
			source: func() string { return diagram },
			opts:   []PageOption{WithMaxTextSize(0)},
			validate: func(t *testing.T, rec *httptest.ResponseRecorder) {
				if !regexp.MustCompile(`maxTextSize:\s*100000`).MatchString(rec.Body.String()) {
					t.Fatalf("expected default maxTextSize in body")
				}
			},
		},
		{
			name:   "auto-refresh-meta-tag",
			title:  "Devnet",
			source: func() string { return diagram },
			opts:   []PageOption{WithAutoRefresh(2)},
			validate: func(t *testing.T, rec *httptest.ResponseRecorder) {
				if !strings.Contains(rec.Body.String(), `http-equiv="refresh" content="2"`) {
					t.Fatalf("expected refresh meta tag in body")
				}
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			handler := NewPageHandler(c.title, c.source, c.opts...)
			req := httptest.NewRequest(http.MethodGet, "/readiness/", nil)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)
			c.validate(t, rec)
		})
	}
}

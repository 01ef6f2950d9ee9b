// Package assets holds the browser client and builds the minified page
// served at "/".
package assets

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/svg"
)

// OpenLayersVersion is the client library version loaded from the CDN.
const OpenLayersVersion = "10.2.1"

//go:embed index.html.tpl style.css script.js favicon.svg
var files embed.FS

// PageData fills index.html.tpl.
type PageData struct {
	CSS string
	JS  string
	SVG string
	OL  string
}

// NewMinifier returns a minifier for every asset type of the page.
func NewMinifier() *minify.M {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("text/html", html.Minify)
	m.AddFunc("text/javascript", js.Minify)
	m.AddFunc("image/svg+xml", svg.Minify)

	return m
}

// Favicon returns the minified SVG icon.
func Favicon() ([]byte, error) {
	m := NewMinifier()
	raw, err := files.ReadFile("favicon.svg")
	if err != nil {
		return nil, err
	}

	return m.Bytes("image/svg+xml", raw)
}

// Build renders the single page with inlined, minified CSS, JS and icon.
func Build() ([]byte, error) {
	m := NewMinifier()

	cssMin, err := minifyFile(m, "style.css", "text/css")
	if err != nil {
		return nil, err
	}
	jsMin, err := minifyFile(m, "script.js", "text/javascript")
	if err != nil {
		return nil, err
	}
	svgMin, err := minifyFile(m, "favicon.svg", "image/svg+xml")
	if err != nil {
		return nil, err
	}

	raw, err := files.ReadFile("index.html.tpl")
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New("index").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, PageData{
		CSS: cssMin,
		JS:  jsMin,
		SVG: svgMin,
		OL:  OpenLayersVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("execute template: %w", err)
	}

	return m.Bytes("text/html", buf.Bytes())
}

func minifyFile(m *minify.M, name, mediatype string) (string, error) {
	raw, err := files.ReadFile(name)
	if err != nil {
		return "", err
	}

	out, err := m.String(mediatype, string(raw))
	if err != nil {
		return "", fmt.Errorf("minify %s: %w", name, err)
	}

	return out, nil
}

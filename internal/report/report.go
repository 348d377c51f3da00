// Package report renders executed notebooks to a standalone HTML page.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/x/ansi"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/elyra-ai/kfp-notebook/internal/notebook"
)

// DefaultStyle is the chroma style used for code cells.
const DefaultStyle = "github"

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
)

// Notebook markdown routinely embeds raw HTML, so it is passed through like nbconvert does.
func markdownRenderer() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		)
	})
	return markdown
}

// Renderer converts notebooks to HTML.
type Renderer struct {
	Style string
}

type page struct {
	Title string
	CSS   template.CSS
	Cells []cellView
}

type cellView struct {
	Kind    string
	Prompt  string
	Body    template.HTML
	Outputs []outputView
}

type outputView struct {
	Kind  string
	Class string
	Text  string
	HTML  template.HTML
	Image template.URL
}

// Render writes nb as HTML to w. The output only depends on the notebook contents.
func (r *Renderer) Render(w io.Writer, nb *notebook.Notebook, title string) error {
	lang := nb.Language()
	if li := nb.Metadata.LanguageInfo; li != nil && li.Name != "" {
		lang = li.Name
	}
	p := page{Title: title, CSS: template.CSS(baseCSS)}
	for i, c := range nb.Cells {
		cv, err := r.cell(c, lang)
		if err != nil {
			return fmt.Errorf("render cell %d: %w", i, err)
		}
		p.Cells = append(p.Cells, cv)
	}
	return pageTemplate.Execute(w, p)
}

// RenderFile reads the notebook at src and writes the page to dst.
func (r *Renderer) RenderFile(src, dst, title string) error {
	nb, err := notebook.Read(src)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := r.Render(&buf, nb, title); err != nil {
		return fmt.Errorf("render %s: %w", src, err)
	}
	if err := os.WriteFile(dst, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

func (r *Renderer) cell(c notebook.Cell, lang string) (cellView, error) {
	src := string(c.Source)
	switch c.CellType {
	case "markdown":
		body, err := renderMarkdown(src)
		return cellView{Kind: "markdown", Body: body}, err
	case "code":
		body, err := r.highlight(src, lang)
		if err != nil {
			return cellView{}, err
		}
		cv := cellView{Kind: "code", Body: body, Prompt: "[ ]:"}
		if c.ExecutionCount != nil {
			cv.Prompt = fmt.Sprintf("[%d]:", *c.ExecutionCount)
		}
		for _, o := range c.Outputs {
			ov, err := renderOutput(o)
			if err != nil {
				return cellView{}, err
			}
			cv.Outputs = append(cv.Outputs, ov)
		}
		return cv, nil
	default:
		return cellView{Kind: "raw", Body: template.HTML("<pre>" + template.HTMLEscapeString(src) + "</pre>")}, nil
	}
}

func renderMarkdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdownRenderer().Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

func (r *Renderer) highlight(code, lang string) (template.HTML, error) {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)
	name := r.Style
	if name == "" {
		name = DefaultStyle
	}
	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "", fmt.Errorf("tokenise: %w", err)
	}
	var buf bytes.Buffer
	if err := chromahtml.New(chromahtml.WithClasses(false)).Format(&buf, styles.Get(name), it); err != nil {
		return "", fmt.Errorf("highlight: %w", err)
	}
	return template.HTML(buf.String()), nil
}

func renderOutput(o notebook.Output) (outputView, error) {
	switch o.OutputType {
	case "stream":
		return outputView{Kind: "text", Class: "stream-" + o.Name, Text: ansi.Strip(string(o.Text))}, nil
	case "error":
		tb := strings.Join(o.Traceback, "\n")
		if tb == "" {
			tb = o.EName + ": " + o.EValue
		}
		return outputView{Kind: "text", Class: "error", Text: ansi.Strip(tb)}, nil
	case "display_data", "execute_result", "update_display_data":
		return renderBundle(o)
	}
	return outputView{Kind: "text", Class: "unknown", Text: ""}, nil
}

// renderBundle picks the richest representation of a mime bundle.
func renderBundle(o notebook.Output) (outputView, error) {
	if s, ok := o.MIME("text/html"); ok {
		return outputView{Kind: "html", HTML: template.HTML(s)}, nil
	}
	for _, mime := range []string{"image/png", "image/jpeg", "image/gif"} {
		if s, ok := o.MIME(mime); ok {
			data := strings.Join(strings.Fields(s), "")
			return outputView{Kind: "image", Image: template.URL("data:" + mime + ";base64," + data)}, nil
		}
	}
	if s, ok := o.MIME("image/svg+xml"); ok {
		return outputView{Kind: "html", HTML: template.HTML(s)}, nil
	}
	if s, ok := o.MIME("text/markdown"); ok {
		body, err := renderMarkdown(s)
		return outputView{Kind: "html", HTML: body}, err
	}
	if s, ok := o.MIME("text/plain"); ok {
		return outputView{Kind: "text", Class: "plain", Text: ansi.Strip(s)}, nil
	}
	return outputView{Kind: "text", Class: "unknown"}, nil
}

const baseCSS = `body{font-family:-apple-system,"Segoe UI",Helvetica,Arial,sans-serif;margin:2em auto;max-width:60em}
.cell{margin:1em 0}
.prompt{color:#303f9f;font-family:monospace;font-size:.9em}
.input pre{padding:.5em;border:1px solid #e0e0e0;overflow-x:auto}
.output pre{margin:.25em 0;padding:.25em .5em;white-space:pre-wrap}
.output pre.error{background:#fdd}
.output pre.stream-stderr{background:#fee}
.output img{max-width:100%}`

var pageTemplate = template.Must(template.New("notebook").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>{{.CSS}}</style>
</head>
<body>
{{- range .Cells}}
<div class="cell {{.Kind}}">
{{- if eq .Kind "code"}}
<div class="prompt">In {{.Prompt}}</div>
<div class="input">{{.Body}}</div>
{{- if .Outputs}}
<div class="output">
{{- range .Outputs}}
{{- if eq .Kind "html"}}
<div class="html">{{.HTML}}</div>
{{- else if eq .Kind "image"}}
<img src="{{.Image}}">
{{- else}}
<pre class="{{.Class}}">{{.Text}}</pre>
{{- end}}
{{- end}}
</div>
{{- end}}
{{- else}}
{{.Body}}
{{- end}}
</div>
{{- end}}
</body>
</html>
`))

package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"
	"sync"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/hanko-field/quotations/internal/services"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	layoutFile      = "templates/layout.html"
	defaultTemplate = "default"
)

// Renderer resolves quotation template names to embedded HTML templates. A name such as
// "quotations/coreQuotationWorkflow/canceled" maps to canceled.html, preferring a language variant
// (canceled.ja.html) when one exists, and falls back to default.html.
type Renderer struct {
	files map[string]struct{}
	cache sync.Map
}

// NewRenderer indexes the embedded templates.
func NewRenderer() *Renderer {
	r := &Renderer{files: map[string]struct{}{}}
	entries, _ := fs.ReadDir(templateFS, "templates")
	for _, entry := range entries {
		r.files[entry.Name()] = struct{}{}
	}
	return r
}

// Render executes the template selected by name and lang against data.
func (r *Renderer) Render(name, lang string, data services.QuotationEmailData) (string, error) {
	file := r.resolve(name, lang)
	tag := languageTag(lang)
	tmpl, err := r.load(file)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	base, _ := tag.Base()
	view := emailView{QuotationEmailData: data, printer: message.NewPrinter(tag), Lang: base.String()}
	if err := tmpl.ExecuteTemplate(&buf, "layout", view); err != nil {
		return "", fmt.Errorf("mailer: render %s: %w", file, err)
	}
	return buf.String(), nil
}

func (r *Renderer) resolve(name, lang string) string {
	base := path.Base(strings.Trim(strings.TrimSpace(name), "/"))
	if base == "." || base == "" {
		base = defaultTemplate
	}
	langBase, _ := languageTag(lang).Base()
	for _, candidate := range []string{
		base + "." + langBase.String() + ".html",
		base + ".html",
		defaultTemplate + "." + langBase.String() + ".html",
		defaultTemplate + ".html",
	} {
		if _, ok := r.files[candidate]; ok {
			return candidate
		}
	}
	return defaultTemplate + ".html"
}

func (r *Renderer) load(file string) (*template.Template, error) {
	if cached, ok := r.cache.Load(file); ok {
		return cached.(*template.Template), nil
	}
	tmpl, err := template.New(file).Funcs(templateFuncs).ParseFS(templateFS, layoutFile, "templates/"+file)
	if err != nil {
		return nil, fmt.Errorf("mailer: parse %s: %w", file, err)
	}
	r.cache.Store(file, tmpl)
	return tmpl, nil
}

type emailView struct {
	services.QuotationEmailData
	Lang    string
	printer *message.Printer
}

// Money formats an amount in the quotation currency for the recipient's language.
func (v emailView) Money(amount float64) string {
	unit, err := currency.ParseISO(v.Summary.CurrencyCode)
	if err != nil {
		return v.printer.Sprintf("%.2f", amount)
	}
	return v.printer.Sprint(currency.Symbol(unit.Amount(amount)))
}

var templateFuncs = template.FuncMap{
	"join": strings.Join,
}

func languageTag(lang string) language.Tag {
	tag, err := language.Parse(strings.TrimSpace(lang))
	if err != nil || tag == language.Und {
		return language.English
	}
	return tag
}

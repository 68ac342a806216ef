package http

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"io/fs"
	"net/http"

	"github.com/kjstillabower/city-weather-widget/internal/models"
	"github.com/kjstillabower/city-weather-widget/internal/widget"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Pages renders the widget page and its fragments.
type Pages struct {
	title string
	tmpl  *template.Template
}

// NewPages parses the embedded templates. title is the page heading.
func NewPages(title string) (*Pages, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Pages{title: title, tmpl: tmpl}, nil
}

type pageData struct {
	Title   string
	Query   string
	Busy    bool
	Listbox listboxData
	Outcome outcomeData
}

type listboxData struct {
	Open  bool
	Names []string
}

type outcomeData struct {
	Success    bool
	Place      string
	Condition  string
	Celsius    string
	Fahrenheit string
	Icon       string

	Error     bool
	ErrorKind string
	Message   string
}

func newOutcomeData(o models.Outcome) outcomeData {
	var d outcomeData
	if r, ok := o.Result(); ok {
		d.Success = true
		d.Place = r.Place()
		d.Condition = r.Condition
		d.Celsius = r.CelsiusText()
		d.Fahrenheit = r.FahrenheitText()
		d.Icon = r.Icon
	}
	if k, ok := o.ErrKind(); ok {
		d.Error = true
		d.ErrorKind = k.String()
		d.Message = k.Message()
	}
	return d
}

// Page writes the full document for a session state.
func (p *Pages) Page(w http.ResponseWriter, status int, st widget.State) error {
	return p.render(w, status, "page", pageData{
		Title:   p.title,
		Query:   st.Query,
		Busy:    st.Phase.Busy(),
		Listbox: listboxData{Open: st.ListboxOpen, Names: st.Suggestions},
		Outcome: newOutcomeData(st.Outcome),
	})
}

// Listbox writes the suggestion list fragment.
func (p *Pages) Listbox(w http.ResponseWriter, names []string) error {
	return p.render(w, http.StatusOK, "listbox", listboxData{Open: len(names) > 0, Names: names})
}

// Outcome writes the result/error fragment.
func (p *Pages) Outcome(w http.ResponseWriter, o models.Outcome) error {
	return p.render(w, http.StatusOK, "outcome", newOutcomeData(o))
}

// render buffers the template output; nothing is written when execution fails.
func (p *Pages) render(w http.ResponseWriter, status int, name string, data interface{}) error {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := io.Copy(w, &buf)
	return err
}

// StaticHandler serves the embedded browser script under /static/.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

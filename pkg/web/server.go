// Package web serves the dashboard pages with their chat transcripts over HTTP.
package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-go-golems/chartchat/pkg/chart"
	"github.com/go-go-golems/chartchat/pkg/chat"
	"github.com/go-go-golems/chartchat/pkg/conversation"
	"github.com/go-go-golems/chartchat/pkg/dataset"
	"github.com/go-go-golems/chartchat/pkg/pages"
	"github.com/go-go-golems/chartchat/pkg/prompt"
	"github.com/go-go-golems/chartchat/pkg/sandbox"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	SessionCookie = "chartchat_session"
	// NoChartWarning replaces the "no chart produced" error on the page.
	NoChartWarning = "El codigo no genero un grafico (variable `fig` no encontrada)."
	// DefaultSessionIdle is how long an unused session is kept.
	DefaultSessionIdle = 12 * time.Hour
)

type Server struct {
	catalog   *pages.Catalog
	loader    *dataset.Loader
	assistant *chat.Assistant
	sessions  *conversation.Sessions
	templates *template.Template
	md        goldmark.Markdown
	idle      time.Duration
}

type ServerOption func(*Server)

func WithSessions(s *conversation.Sessions) ServerOption {
	return func(srv *Server) {
		srv.sessions = s
	}
}

func WithSessionIdle(d time.Duration) ServerOption {
	return func(srv *Server) {
		srv.idle = d
	}
}

func NewServer(catalog *pages.Catalog, loader *dataset.Loader, assistant *chat.Assistant, options ...ServerOption) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, errors.Wrap(err, "parsing templates")
	}
	s := &Server{
		catalog:   catalog,
		loader:    loader,
		assistant: assistant,
		sessions:  conversation.NewSessions(),
		templates: tmpl,
		md:        goldmark.New(),
		idle:      DefaultSessionIdle,
	}
	for _, o := range options {
		o(s)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /pages/{page}", s.handlePage)
	mux.HandleFunc("POST /pages/{page}/ask", s.handleAsk)
	mux.HandleFunc("GET /pages/{page}/charts/{id}", s.handleChart)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /api/pages/{page}/turns", s.handleTurns)
	return mux
}

// ExpireSessions drops idle sessions every interval until ctx is done.
func (s *Server) ExpireSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sessions.Expire(s.idle)
		}
	}
}

// session returns the visitor's session, setting the cookie for new ones.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *conversation.Session {
	id := ""
	if c, err := r.Cookie(SessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			id = c.Value
		}
	}
	sess := s.sessions.Open(id)
	if sess.ID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}

type indexView struct {
	Title    string
	Business string
	Pages    []pages.Page
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, "index", indexView{Title: "Páginas", Business: s.catalog.Business, Pages: s.catalog.Pages})
}

type turnView struct {
	Role       conversation.Role
	HTML       template.HTML
	ChartURL   string
	ChartTitle string
	Error      string
	Warning    string
	Last       bool
}

type pageView struct {
	Title           string
	Business        string
	Page            pages.Page
	Rows            int
	Enabled         bool
	DisabledMessage string
	Turns           []turnView
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	p, _, ds, ok := s.load(w, r)
	if !ok {
		return
	}
	sess := s.session(w, r)
	view := pageView{
		Title:           p.Title,
		Business:        s.catalog.Business,
		Page:            p,
		Rows:            ds.NumRows(),
		Enabled:         s.assistant.Enabled(),
		DisabledMessage: s.assistant.DisabledMessage(),
	}
	turns := sess.Store.Get(p.Key)
	for i, t := range turns {
		v := turnView{Role: t.Role, Error: t.Error, Last: i == len(turns)-1}
		if t.Error == sandbox.ErrNoChart.Error() {
			v.Error, v.Warning = "", NoChartWarning
		}
		if t.DisplayText != "" {
			v.HTML = s.markdown(t.DisplayText)
		}
		if t.HasChart() {
			v.ChartURL = "/pages/" + p.Key + "/charts/" + t.ID.String()
			v.ChartTitle = t.Chart.Title()
		}
		view.Turns = append(view.Turns, v)
	}
	s.render(w, "page", view)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	p, page, ds, ok := s.load(w, r)
	if !ok {
		return
	}
	if !s.assistant.Enabled() {
		http.Error(w, s.assistant.DisabledMessage(), http.StatusServiceUnavailable)
		return
	}
	text := strings.TrimSpace(r.FormValue("q"))
	sess := s.session(w, r)
	if text != "" {
		err := sess.Do(func(store conversation.Store) error {
			_, err := s.assistant.Submit(r.Context(), sess.ID, store, page, ds, text)
			return err
		})
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			log.Error().Err(err).Str("page", p.Key).Msg("chat submission failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	http.Redirect(w, r, "/pages/"+p.Key+"#last", http.StatusSeeOther)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	_ = sess.Do(func(store conversation.Store) error {
		store.Reset()
		return nil
	})
	target := "/"
	if key := r.FormValue("page"); key != "" {
		if p, err := s.catalog.Get(key); err == nil {
			target = "/pages/" + p.Key
		}
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.Get(r.PathValue("page"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	sess := s.session(w, r)
	for _, t := range sess.Store.Get(p.Key) {
		if t.ID != id || !t.HasChart() {
			continue
		}
		var buf bytes.Buffer
		if err := chart.RenderHTML(&buf, t.Chart); err != nil {
			log.Error().Err(err).Str("turn", id.String()).Msg("chart rendering failed")
			http.Error(w, "chart rendering failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
		return
	}
	http.NotFound(w, r)
}

func (s *Server) handleTurns(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.Get(r.PathValue("page"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	sess := s.session(w, r)
	turns := sess.Store.Get(p.Key)
	if turns == nil {
		turns = conversation.Conversation{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(turns); err != nil {
		log.Debug().Err(err).Msg("writing turns")
	}
}

// load resolves the page of the request and loads its data, writing the error response
// when that fails.
func (s *Server) load(w http.ResponseWriter, r *http.Request) (pages.Page, prompt.Page, *dataset.Dataset, bool) {
	p, ds, err := s.catalog.Load(r.Context(), s.loader, r.PathValue("page"))
	if err != nil {
		if errors.Is(err, pages.ErrUnknownPage) {
			http.NotFound(w, r)
		} else {
			log.Error().Err(err).Str("page", r.PathValue("page")).Msg("loading page data failed")
			http.Error(w, "loading page data failed", http.StatusInternalServerError)
		}
		return pages.Page{}, prompt.Page{}, nil, false
	}
	return p, prompt.Page{Key: p.Key, Description: p.Description}, ds, true
}

func (s *Server) markdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("rendering template failed")
		http.Error(w, "rendering failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

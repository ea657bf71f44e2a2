// Package web serves the public event pages, the admin editor and the
// JSON endpoints on top of site.Service.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gorilla/csrf"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"eventsite/internal/logger"
	"eventsite/internal/middleware"
	"eventsite/internal/security"
	"eventsite/internal/site"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Raw HTML in the home text is not rendered (WithUnsafe is not set).
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

var pageNames = []string{"home", "schedule", "drinks", "location", "login", "config"}

type Options struct {
	CSRFKey        []byte
	SecureCookies  bool
	MaxUploadBytes int64
}

type Server struct {
	site     *site.Service
	sessions *security.SessionStore
	media    *site.LocalMedia
	opts     Options
	pages    map[string]*template.Template
}

func NewServer(svc *site.Service, sessions *security.SessionStore, media *site.LocalMedia, opts Options) (*Server, error) {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 16 << 20
	}
	s := &Server{
		site:     svc,
		sessions: sessions,
		media:    media,
		opts:     opts,
		pages:    make(map[string]*template.Template, len(pageNames)),
	}
	for _, name := range pageNames {
		tmpl, err := template.New("layout.tmpl").Funcs(templateFuncs).ParseFS(templateFS,
			"templates/layout.tmpl", "templates/"+name+".tmpl")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		s.pages[name] = tmpl
	}
	return s, nil
}

var templateFuncs = template.FuncMap{
	"markdown": renderMarkdown,
	"formatPrice": func(price float64) string {
		return fmt.Sprintf("%.2f €", price)
	},
	"percent": func(progress float64) int {
		return int(progress*100 + 0.5)
	},
	"lower": strings.ToLower,
}

func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// Handler is Routes behind CSRF protection for every unsafe method.
func (s *Server) Handler() http.Handler {
	protect := csrf.Protect(s.opts.CSRFKey,
		csrf.Secure(s.opts.SecureCookies),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(csrfFailure)),
	)
	protected := protect(s.Routes())
	if s.opts.SecureCookies {
		return protected
	}
	// Without TLS the origin check must be told the request is plaintext.
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		protected.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
	})
}

func csrfFailure(w http.ResponseWriter, r *http.Request) {
	logger.LogWarn("CSRF check failed for %s %s from %s: %v",
		r.Method, r.URL.Path, logger.GetClientIP(r), csrf.FailureReason(r))
	http.Error(w, "Forbidden - invalid CSRF token", http.StatusForbidden)
}

// Routes registers every endpoint.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /{$}", s.page(s.homeHandler))
	mux.HandleFunc("GET /schedule", s.page(s.scheduleHandler))
	mux.HandleFunc("GET /drinks", s.page(s.drinksHandler))
	mux.HandleFunc("GET /location", s.page(s.locationHandler))
	mux.HandleFunc("GET /tickets", s.page(s.ticketsHandler))
	mux.HandleFunc("GET /login", s.page(s.loginPageHandler))
	mux.HandleFunc("POST /login", s.page(s.loginHandler))
	mux.HandleFunc("GET /logout", s.page(s.logoutHandler))
	mux.HandleFunc("GET /config", s.admin(s.configPageHandler))
	mux.HandleFunc("POST /config", s.admin(s.configSubmitHandler))
	mux.HandleFunc("GET /uploads/{file}", s.page(s.uploadHandler))

	mux.HandleFunc("GET /api/schedule", middleware.APIMiddleware(s.apiScheduleHandler))
	mux.HandleFunc("GET /api/drinks", middleware.APIMiddleware(s.apiDrinksHandler))

	return mux
}

// page wraps a browser facing handler: request ID, logging, recovery and
// a session for flashes.
func (s *Server) page(h http.HandlerFunc) http.HandlerFunc {
	return middleware.RequestID(
		middleware.Logging(
			middleware.ErrorHandling(
				middleware.Session(s.sessions, s.opts.SecureCookies)(h),
			),
		),
	)
}

// admin is page plus a logged in admin session.
func (s *Server) admin(h http.HandlerFunc) http.HandlerFunc {
	return s.page(middleware.RequireAdmin(s.sessions, "/login")(h))
}

type pageData struct {
	Admin     bool
	Flashes   []string
	CSRFField template.HTML
	Data      any
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		logger.LogError("Unknown page template %s", name)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	token := middleware.GetSession(r.Context())
	pd := pageData{
		Admin:     s.sessions.IsAdmin(token),
		Flashes:   s.sessions.PopFlashes(token),
		CSRFField: csrf.TemplateField(r),
		Data:      data,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, pd); err != nil {
		logger.LogError("Failed to render %s template: %v", name, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// flash queues msg for the next page, opening a session if the visitor
// has none yet.
func (s *Server) flash(w http.ResponseWriter, r *http.Request, msg string) {
	token, err := middleware.StartSession(w, r)
	if err != nil {
		logger.LogError("Failed to start session for flash %q: %v", msg, err)
		return
	}
	s.sessions.AddFlash(token, msg)
}

package web

import (
	"errors"
	"net/http"
	"strings"

	"eventsite/internal/logger"
	"eventsite/internal/middleware"
	"eventsite/internal/site"
)

// =============================================================================
// PUBLIC PAGES
// =============================================================================

type homePage struct {
	Home     site.Home
	ImageURL string
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	home := s.site.Home()
	s.render(w, r, "home", homePage{Home: home, ImageURL: "/uploads/" + home.Image})
}

func (s *Server) scheduleHandler(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "schedule", s.site.Schedule())
}

func (s *Server) drinksHandler(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "drinks", s.site.Drinks())
}

func (s *Server) locationHandler(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "location", s.site.LocationLink())
}

func (s *Server) ticketsHandler(w http.ResponseWriter, r *http.Request) {
	link := s.site.TicketsLink()
	if link == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	http.Redirect(w, r, link, http.StatusFound)
}

func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	path, ok := s.media.Path(r.PathValue("file"))
	if !ok {
		logger.LogInfo("Upload not found: %s", r.PathValue("file"))
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	http.ServeFile(w, r, path)
}

// =============================================================================
// LOGIN
// =============================================================================

func (s *Server) loginPageHandler(w http.ResponseWriter, r *http.Request) {
	if s.sessions.IsAdmin(middleware.GetSession(r.Context())) {
		http.Redirect(w, r, "/config", http.StatusSeeOther)
		return
	}
	s.render(w, r, "login", nil)
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		logger.LogHTTPError(r, http.StatusBadRequest, err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if !s.site.VerifyAdmin(r.PostFormValue("password")) {
		logger.LogWarn("Failed admin login from %s", logger.GetClientIP(r))
		s.flash(w, r, "Invalid password.")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	token, err := s.sessions.Promote(middleware.GetSession(r.Context()))
	if err != nil {
		logger.LogHTTPError(r, http.StatusInternalServerError, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	middleware.SetSessionCookie(w, token, s.opts.SecureCookies)
	logger.LogInfo("Admin logged in from %s", logger.GetClientIP(r))
	http.Redirect(w, r, "/config", http.StatusSeeOther)
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetSession(r.Context())
	s.sessions.Demote(token)
	s.flash(w, r, "You were logged out.")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// =============================================================================
// ADMIN EDITOR
// =============================================================================

func (s *Server) configPageHandler(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "config", s.site.Editor())
}

// configSubmitHandler dispatches on the submit button that was pressed.
func (s *Server) configSubmitHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := parseForm(r, s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.LogHTTPError(r, http.StatusRequestEntityTooLarge, err)
			s.flash(w, r, "Upload too large.")
			http.Redirect(w, r, "/config", http.StatusSeeOther)
			return
		}
		logger.LogHTTPError(r, http.StatusBadRequest, err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	switch {
	case r.PostForm.Has("delete"):
		s.deleteEntry(w, r)
	case r.PostForm.Has("add-dj"):
		s.addEntry(w, r, site.SectionSchedule, "new-dj-", []string{"time", "genre", "soundcloud", "instagram"})
	case r.PostForm.Has("add-drink"):
		s.addEntry(w, r, site.SectionDrinks, "new-drink-", []string{"price", "amount", "category"})
	case r.PostForm.Has("clear-config"):
		if err := s.site.ClearAll(); err != nil {
			logger.LogError("Failed to clear configuration: %v", err)
			s.flash(w, r, "Error clearing configuration: "+err.Error())
		} else {
			s.flash(w, r, "Configuration cleared.")
		}
	default:
		s.saveSections(w, r)
	}
	http.Redirect(w, r, "/config", http.StatusSeeOther)
}

func parseForm(r *http.Request, maxMemory int64) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(maxMemory)
	}
	return r.ParseForm()
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	section, key, err := site.ParseDeleteTarget(r.PostFormValue("delete"))
	if err != nil {
		s.flash(w, r, "Error deleting entry: "+err.Error())
		return
	}
	removed, err := s.site.DeleteEntity(section, key)
	switch {
	case err != nil:
		logger.LogError("Failed to delete %s/%s: %v", section, key, err)
		s.flash(w, r, "Error deleting entry: "+err.Error())
	case !removed:
		s.flash(w, r, key+" was already gone.")
	default:
		s.flash(w, r, key+" deleted.")
	}
}

func (s *Server) addEntry(w http.ResponseWriter, r *http.Request, section, prefix string, fields []string) {
	values := make(map[string]string, len(fields))
	for _, f := range fields {
		values[f] = r.PostFormValue(prefix + f)
	}
	name := r.PostFormValue(prefix + "name")
	if err := s.site.AddEntity(section, name, values); err != nil {
		logger.LogError("Failed to add %s entry: %v", section, err)
		s.flash(w, r, "Error adding entry: "+err.Error())
		return
	}
	s.flash(w, r, strings.TrimSpace(name)+" added.")
}

func (s *Server) saveSections(w http.ResponseWriter, r *http.Request) {
	form := make(site.Form, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			form[key] = values[0]
		}
	}
	// Only an uploaded file may set the image.
	delete(form, "home-image")

	if file, header, err := r.FormFile("home-image"); err == nil {
		name, err := s.site.StoreHomeImage(header.Filename, file)
		file.Close()
		if err != nil {
			logger.LogWarn("Rejected home image upload %q: %v", header.Filename, err)
			s.flash(w, r, "Image not saved: "+err.Error())
		} else {
			form["home-image"] = name
		}
	} else if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		logger.LogHTTPError(r, http.StatusBadRequest, err)
	}

	messages, err := s.site.SaveSections(form)
	for _, msg := range messages {
		s.flash(w, r, msg)
	}
	if err != nil {
		logger.LogError("Failed to save configuration: %v", err)
		s.flash(w, r, "Error saving configuration: "+err.Error())
	}
}

// =============================================================================
// JSON API
// =============================================================================

func (s *Server) apiScheduleHandler(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPISuccess(w, r, s.site.Schedule())
}

func (s *Server) apiDrinksHandler(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPISuccess(w, r, s.site.Drinks())
}

package site

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"eventsite/internal/configstore"
	"eventsite/internal/drinks"
	"eventsite/internal/logger"
	"eventsite/internal/schedule"
)

var (
	ErrUnknownSection = errors.New("section is not editable")
	ErrUnknownEntity  = errors.New("no such entry")
	ErrEmptyName      = errors.New("name must not be empty")
)

// Form is a decoded admin form: field name to first submitted value.
type Form map[string]string

// Record is a parsed entity value whose fields are edited by name.
type Record interface {
	Get(field string) (string, bool)
	Set(field, value string) bool
	Value() string
}

// SectionHandler applies the admin form fields a section owns to the
// document being saved.
type SectionHandler interface {
	Section() string
	Apply(doc *configstore.Document, form Form) error
}

// Committer is implemented by handlers whose effect lives outside the
// document. Commit runs only after the document was saved and returns a
// message for the admin, or "" when nothing happened.
type Committer interface {
	Commit(form Form) (string, error)
}

// EntityHandler edits a section whose keys are entities (a DJ, a drink)
// and whose values are positional field lists. Form fields are named
// "<SECTION>-<entity>-<field>".
type EntityHandler struct {
	Name   string
	Fields []string
	Parse  func(raw string) Record
}

func (h *EntityHandler) Section() string { return h.Name }

// Apply collects the "<SECTION>-<entity>-<field>" fields of the form and
// rewrites each named entity. The entity name is everything between the
// section prefix and the last "-", so names may contain dashes. Editing
// an entity that does not exist fails the whole save.
func (h *EntityHandler) Apply(doc *configstore.Document, form Form) error {
	updates := make(map[string]map[string]string)
	for key, value := range form {
		entity, field, ok := h.splitFormKey(key)
		if !ok {
			continue
		}
		if updates[entity] == nil {
			updates[entity] = make(map[string]string)
		}
		updates[entity][field] = value
	}
	if len(updates) == 0 {
		return nil
	}

	sec, err := doc.AddSection(h.Name)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(updates))
	for name := range updates {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		raw, ok := sec.Get(name)
		if !ok {
			return fmt.Errorf("%s %q: %w", h.Name, name, ErrUnknownEntity)
		}
		rec := h.Parse(raw)
		for field, value := range updates[name] {
			if !rec.Set(field, strings.TrimSpace(value)) {
				logger.LogDebug("Ignoring unknown field %q for %s %q", field, h.Name, name)
			}
		}
		if err := sec.Set(name, rec.Value()); err != nil {
			return fmt.Errorf("%s %q: %w", h.Name, name, err)
		}
	}
	return nil
}

func (h *EntityHandler) splitFormKey(key string) (entity, field string, ok bool) {
	rest, found := strings.CutPrefix(key, h.Name+"-")
	if !found {
		return "", "", false
	}
	i := strings.LastIndex(rest, "-")
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// Add stores a new entity built from fields, replacing an existing one
// with the same name.
func (h *EntityHandler) Add(doc *configstore.Document, name string, fields map[string]string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%s: %w", h.Name, ErrEmptyName)
	}
	rec := h.Parse("")
	for field, value := range fields {
		rec.Set(field, strings.TrimSpace(value))
	}
	sec, err := doc.AddSection(h.Name)
	if err != nil {
		return err
	}
	return sec.Set(name, rec.Value())
}

// ScalarField binds one form field to one key of a section.
type ScalarField struct {
	FormKey string
	Key     string
	// Default is written when the form omits the field, unless Optional.
	Default   string
	Optional  bool
	SkipEmpty bool
}

// ScalarHandler edits a section of single values (home text, links).
type ScalarHandler struct {
	Name   string
	Fields []ScalarField
}

func (h *ScalarHandler) Section() string { return h.Name }

func (h *ScalarHandler) Apply(doc *configstore.Document, form Form) error {
	sec, err := doc.AddSection(h.Name)
	if err != nil {
		return err
	}
	for _, f := range h.Fields {
		value, ok := form[f.FormKey]
		if !ok {
			if f.Optional {
				continue
			}
			value = f.Default
		}
		if f.SkipEmpty && strings.TrimSpace(value) == "" {
			continue
		}
		if err := sec.Set(f.Key, value); err != nil {
			return fmt.Errorf("%s.%s: %w", h.Name, f.Key, err)
		}
	}
	return nil
}

// AdminHandler changes the admin password. The hash lives in the
// credential file, not in the document.
type AdminHandler struct {
	Credentials Credentials
}

const AdminPasswordField = "admin-password"

func (h *AdminHandler) Section() string { return SectionAdmin }

func (h *AdminHandler) Apply(*configstore.Document, Form) error { return nil }

func (h *AdminHandler) Commit(form Form) (string, error) {
	password := form[AdminPasswordField]
	if password == "" {
		return "", nil
	}
	if err := h.Credentials.SetPassword(password); err != nil {
		return "", fmt.Errorf("update admin password: %w", err)
	}
	return "Admin password updated successfully.", nil
}

// Registry maps section names to their handlers. Handlers run in
// registration order.
type Registry struct {
	handlers []SectionHandler
	byName   map[string]SectionHandler
}

func NewRegistry(handlers ...SectionHandler) *Registry {
	r := &Registry{byName: make(map[string]SectionHandler, len(handlers))}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register adds h, replacing any handler for the same section.
func (r *Registry) Register(h SectionHandler) {
	if _, exists := r.byName[h.Section()]; exists {
		for i, old := range r.handlers {
			if old.Section() == h.Section() {
				r.handlers[i] = h
			}
		}
	} else {
		r.handlers = append(r.handlers, h)
	}
	r.byName[h.Section()] = h
}

func (r *Registry) Handler(section string) (SectionHandler, bool) {
	h, ok := r.byName[section]
	return h, ok
}

// Entity returns the handler of an entity section.
func (r *Registry) Entity(section string) (*EntityHandler, bool) {
	h, ok := r.byName[section].(*EntityHandler)
	return h, ok
}

// Editable reports whether admins may edit or delete keys of section.
func (r *Registry) Editable(section string) bool {
	_, ok := r.byName[section]
	return ok
}

func (r *Registry) Sections() []string {
	out := make([]string, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h.Section())
	}
	return out
}

// Apply runs every handler against doc.
func (r *Registry) Apply(doc *configstore.Document, form Form) error {
	for _, h := range r.handlers {
		if err := h.Apply(doc, form); err != nil {
			return err
		}
	}
	return nil
}

// Commit runs the out-of-document effects and collects their messages.
func (r *Registry) Commit(form Form) ([]string, error) {
	var messages []string
	for _, h := range r.handlers {
		c, ok := h.(Committer)
		if !ok {
			continue
		}
		msg, err := c.Commit(form)
		if err != nil {
			return messages, err
		}
		if msg != "" {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

// DefaultRegistry wires the sections the admin page edits.
func DefaultRegistry(creds Credentials) *Registry {
	return NewRegistry(
		&EntityHandler{
			Name:   SectionSchedule,
			Fields: schedule.Fields(),
			Parse: func(raw string) Record {
				e := schedule.ParseEntry("", raw)
				return &e
			},
		},
		&EntityHandler{
			Name:   SectionDrinks,
			Fields: drinks.FieldNames(),
			Parse: func(raw string) Record {
				f := drinks.SplitFields(raw)
				return &f
			},
		},
		&ScalarHandler{
			Name: SectionHome,
			Fields: []ScalarField{
				{FormKey: "home-text", Key: "text", Default: DefaultHomeText},
				{FormKey: "home-image", Key: "image", Optional: true, SkipEmpty: true},
			},
		},
		&ScalarHandler{
			Name: SectionLocation,
			Fields: []ScalarField{
				{FormKey: "location-link", Key: "link"},
			},
		},
		&ScalarHandler{
			Name: SectionTickets,
			Fields: []ScalarField{
				{FormKey: "tickets-link", Key: "link", Optional: true},
			},
		},
		&AdminHandler{Credentials: creds},
	)
}

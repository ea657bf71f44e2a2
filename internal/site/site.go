// Package site is the event site's domain service. It owns the section
// layout of the configuration, builds the read-side views the pages show
// and runs every admin edit as one store transaction.
package site

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"eventsite/internal/configstore"
	"eventsite/internal/drinks"
	"eventsite/internal/logger"
	"eventsite/internal/schedule"
)

const (
	SectionFlask    = "FLASK"
	SectionSchedule = schedule.Section
	SectionDrinks   = drinks.Section
	SectionHome     = "HOME"
	SectionLocation = "LOCATION"
	SectionTickets  = "TICKETS"
	SectionAdmin    = "ADMIN"

	DefaultHomeText    = "Welcome to our event!"
	DefaultHomeImage   = "event.png"
	DefaultTicketsLink = "https://example.com/tickets"
)

// RequiredSections always exist after Ensure.
var RequiredSections = []string{
	SectionFlask,
	SectionSchedule,
	SectionDrinks,
	SectionHome,
	SectionLocation,
	SectionTickets,
	SectionAdmin,
}

// Defaults are seeded when their key is missing.
var Defaults = []configstore.Default{
	{Section: SectionHome, Key: "text", Value: DefaultHomeText},
	{Section: SectionHome, Key: "image", Value: DefaultHomeImage},
	{Section: SectionLocation, Key: "link", Value: ""},
	{Section: SectionTickets, Key: "link", Value: DefaultTicketsLink},
}

// Credentials hashes and verifies the admin password.
type Credentials interface {
	SetPassword(plain string) error
	Verify(plain string) bool
}

var ErrNoMediaStore = errors.New("uploads are not configured")

// Options configure a Service. Store, Credentials and Resolver are
// required; without Media uploads are rejected.
type Options struct {
	Store       *configstore.Store
	Credentials Credentials
	Media       MediaStore
	Resolver    *schedule.Resolver

	// ExtraSections and ExtraDefaults extend the built-in layout. An extra
	// default for a built-in key replaces its value.
	ExtraSections []string
	ExtraDefaults []configstore.Default
}

type Service struct {
	store    *configstore.Store
	creds    Credentials
	media    MediaStore
	resolver *schedule.Resolver
	registry *Registry
	required []string
	defaults []configstore.Default
}

func NewService(opts Options) (*Service, error) {
	if opts.Store == nil || opts.Credentials == nil || opts.Resolver == nil {
		return nil, errors.New("site: store, credentials and resolver are required")
	}
	return &Service{
		store:    opts.Store,
		creds:    opts.Credentials,
		media:    opts.Media,
		resolver: opts.Resolver,
		registry: DefaultRegistry(opts.Credentials),
		required: mergeSections(RequiredSections, opts.ExtraSections),
		defaults: mergeDefaults(Defaults, opts.ExtraDefaults),
	}, nil
}

func mergeSections(base, extra []string) []string {
	out := append([]string(nil), base...)
	seen := make(map[string]bool, len(base))
	for _, s := range base {
		seen[s] = true
	}
	for _, s := range extra {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func mergeDefaults(base, extra []configstore.Default) []configstore.Default {
	out := append([]configstore.Default(nil), base...)
	index := make(map[[2]string]int, len(base))
	for i, d := range out {
		index[[2]string{d.Section, d.Key}] = i
	}
	for _, d := range extra {
		k := [2]string{d.Section, d.Key}
		if i, ok := index[k]; ok {
			out[i] = d
			continue
		}
		index[k] = len(out)
		out = append(out, d)
	}
	return out
}

func (s *Service) Store() *configstore.Store { return s.store }

func (s *Service) Registry() *Registry { return s.registry }

// Ensure adds missing sections and defaults and persists the result.
func (s *Service) Ensure() error {
	return s.store.EnsureSections(s.required, s.defaults)
}

// snapshot ensures the layout and returns a private copy of the document.
// A failed save is logged; the in-memory document is still served.
func (s *Service) snapshot() *configstore.Document {
	if err := s.Ensure(); err != nil {
		logger.LogError("Failed to ensure config sections: %v", err)
	}
	return s.store.Snapshot()
}

func entries(doc *configstore.Document, section string) []configstore.Entry {
	sec, ok := doc.Section(section)
	if !ok {
		return nil
	}
	return sec.Entries()
}

// =============================================================================
// READ SIDE
// =============================================================================

// Home is the landing page content.
type Home struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

func (s *Service) Home() Home {
	doc := s.snapshot()
	return homeFrom(doc)
}

func homeFrom(doc *configstore.Document) Home {
	return Home{
		Text:  doc.GetOr(SectionHome, "text", DefaultHomeText),
		Image: doc.GetOr(SectionHome, "image", DefaultHomeImage),
	}
}

func (s *Service) Schedule() schedule.View {
	return s.resolver.View(entries(s.snapshot(), SectionSchedule))
}

func (s *Service) Drinks() drinks.View {
	return drinks.BuildView(entries(s.snapshot(), SectionDrinks))
}

func (s *Service) LocationLink() string {
	return s.snapshot().GetOr(SectionLocation, "link", "")
}

func (s *Service) TicketsLink() string {
	return s.snapshot().GetOr(SectionTickets, "link", DefaultTicketsLink)
}

func (s *Service) Sections() []string {
	return s.snapshot().Sections()
}

// Content is the serialized configuration file.
func (s *Service) Content() []byte {
	return s.snapshot().Bytes()
}

// DrinkRow is a drink as the editor shows it: raw fields, uninterpreted.
type DrinkRow struct {
	Name string `json:"name"`
	drinks.Fields
}

// EditorState is everything the admin page renders.
type EditorState struct {
	Sections     []string         `json:"sections"`
	DJs          []schedule.Entry `json:"djs"`
	Drinks       []DrinkRow       `json:"drinks"`
	Home         Home             `json:"home"`
	LocationLink string           `json:"location_link"`
	TicketsLink  string           `json:"tickets_link"`
}

func (s *Service) Editor() EditorState {
	doc := s.snapshot()
	state := EditorState{
		Sections:     doc.Sections(),
		DJs:          schedule.ParseSection(entries(doc, SectionSchedule)),
		Home:         homeFrom(doc),
		LocationLink: doc.GetOr(SectionLocation, "link", ""),
		TicketsLink:  doc.GetOr(SectionTickets, "link", DefaultTicketsLink),
	}
	for _, e := range entries(doc, SectionDrinks) {
		state.Drinks = append(state.Drinks, DrinkRow{Name: e.Key, Fields: drinks.SplitFields(e.Value)})
	}
	return state
}

// VerifyAdmin checks an admin login attempt.
func (s *Service) VerifyAdmin(password string) bool {
	return s.creds.Verify(password)
}

// =============================================================================
// MUTATIONS
// =============================================================================

// SaveSections applies an admin form to every registered section in one
// transaction. Nothing is written when any section rejects the form.
// Effects outside the document, such as a password change, run after the
// save.
func (s *Service) SaveSections(form Form) ([]string, error) {
	err := s.store.Update("save", func(doc *configstore.Document) error {
		if err := configstore.ApplyDefaults(doc, s.required, s.defaults); err != nil {
			return err
		}
		return s.registry.Apply(doc, form)
	})
	if err != nil {
		return nil, fmt.Errorf("save configuration: %w", err)
	}

	messages := []string{"Configuration saved successfully!"}
	extra, err := s.registry.Commit(form)
	messages = append(messages, extra...)
	if err != nil {
		return messages, err
	}
	logger.LogInfo("Configuration saved (%d form fields)", len(form))
	return messages, nil
}

// AddEntity adds a DJ or a drink.
func (s *Service) AddEntity(section, name string, fields map[string]string) error {
	h, ok := s.registry.Entity(section)
	if !ok {
		return fmt.Errorf("%s: %w", section, ErrUnknownSection)
	}
	err := s.store.Update("add-entity", func(doc *configstore.Document) error {
		if err := configstore.ApplyDefaults(doc, s.required, s.defaults); err != nil {
			return err
		}
		return h.Add(doc, name, fields)
	})
	if err != nil {
		return err
	}
	logger.LogInfo("Added %s entry %q", section, strings.TrimSpace(name))
	return nil
}

// DeleteEntity removes key from an editable section. It reports whether
// the key existed.
func (s *Service) DeleteEntity(section, key string) (bool, error) {
	if !s.registry.Editable(section) {
		return false, fmt.Errorf("%s: %w", section, ErrUnknownSection)
	}
	var removed bool
	err := s.store.Update("delete-entity", func(doc *configstore.Document) error {
		if err := configstore.ApplyDefaults(doc, s.required, s.defaults); err != nil {
			return err
		}
		var err error
		removed, err = doc.RemoveKey(section, key)
		return err
	})
	if err != nil {
		return false, err
	}
	if removed {
		logger.LogInfo("Deleted %s entry %q", section, key)
	}
	return removed, nil
}

// ParseDeleteTarget splits a delete button value "<SECTION>-<key>" on the
// first dash.
func ParseDeleteTarget(value string) (section, key string, err error) {
	section, key, ok := strings.Cut(value, "-")
	if !ok || section == "" || key == "" {
		return "", "", fmt.Errorf("invalid delete target %q", value)
	}
	return section, key, nil
}

// ClearAll wipes the configuration and reseeds a minimal layout.
func (s *Service) ClearAll() error {
	err := s.store.Update("clear-all", func(doc *configstore.Document) error {
		doc.Clear()
		seed := []configstore.Default{
			{Section: SectionFlask, Key: "debug", Value: "True"},
			{Section: SectionHome, Key: "text", Value: DefaultHomeText},
			{Section: SectionHome, Key: "image", Value: DefaultHomeImage},
			{Section: SectionLocation, Key: "link", Value: ""},
		}
		if err := configstore.ApplyDefaults(doc, []string{SectionFlask, SectionSchedule, SectionDrinks}, seed); err != nil {
			return err
		}
		return configstore.ApplyDefaults(doc, s.required, s.defaults)
	})
	if err != nil {
		return err
	}
	logger.LogWarn("Configuration cleared")
	return nil
}

func (s *Service) SetAdminPassword(password string) error {
	if err := s.creds.SetPassword(password); err != nil {
		return err
	}
	logger.LogInfo("Admin password changed")
	return nil
}

// SetHomeImage points the home page at an already stored image.
func (s *Service) SetHomeImage(name string) error {
	return s.store.Update("set-home-image", func(doc *configstore.Document) error {
		if err := configstore.ApplyDefaults(doc, s.required, s.defaults); err != nil {
			return err
		}
		return doc.Set(SectionHome, "image", name)
	})
}

// RestoreRevision replaces the whole configuration with content, which
// must parse as a configuration file.
func (s *Service) RestoreRevision(content []byte) error {
	doc, err := configstore.Parse(bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if err := s.store.Replace("restore", doc); err != nil {
		return err
	}
	logger.LogInfo("Configuration restored (%d sections)", len(doc.Sections()))
	return nil
}

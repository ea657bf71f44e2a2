package testing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"eventsite/internal/backup"
	"eventsite/internal/configstore"
	"eventsite/internal/data"
	"eventsite/internal/schedule"
	"eventsite/internal/security"
	"eventsite/internal/site"
	"eventsite/internal/web"
)

const adminPassword = "rave24"

// TestSuite provides a fully wired site on a temporary directory
type TestSuite struct {
	Dir        string
	ConfigPath string
	Store      *configstore.Store
	Site       *site.Service
	Backup     *memoryDestination
	Uploader   *backup.Uploader
	Server     *httptest.Server
	Client     *http.Client

	clock atomic.Int64
}

// NewTestSuite wires the stack with history and backup enabled
func NewTestSuite(t testing.TB) *TestSuite {
	t.Helper()
	dir := t.TempDir()
	suite := &TestSuite{
		Dir:        dir,
		ConfigPath: filepath.Join(dir, "config.ini"),
		Backup:     &memoryDestination{},
	}
	suite.SetClock(time.Date(2026, 7, 18, 21, 0, 0, 0, time.UTC))

	require.NoError(t, data.InitDB(filepath.Join(dir, "history.db")))

	store, err := configstore.Open(suite.ConfigPath)
	require.NoError(t, err)
	store.OnSave(data.RevisionHook)

	suite.Uploader = backup.NewUploader([]backup.Destination{suite.Backup}, 5*time.Second)
	suite.Uploader.Start()
	store.OnSave(suite.Uploader.Hook)
	suite.Store = store

	creds := security.NewCredentialStore(filepath.Join(dir, "password.txt"), bcrypt.MinCost)
	_, err = creds.EnsureDefault(adminPassword)
	require.NoError(t, err)

	resolver, err := schedule.NewResolver("UTC")
	require.NoError(t, err)
	resolver = resolver.WithClock(func() time.Time {
		return time.Unix(suite.clock.Load(), 0)
	})

	media := site.NewLocalMedia(filepath.Join(dir, "static"))
	suite.Site, err = site.NewService(site.Options{
		Store:       store,
		Credentials: creds,
		Media:       media,
		Resolver:    resolver,
	})
	require.NoError(t, err)
	require.NoError(t, suite.Site.Ensure())

	srv, err := web.NewServer(suite.Site, security.NewSessionStore(time.Hour), media, web.Options{
		CSRFKey: bytes.Repeat([]byte{1}, 32),
	})
	require.NoError(t, err)
	suite.Server = httptest.NewServer(srv.Routes())

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	suite.Client = &http.Client{
		Jar:     jar,
		Timeout: 30 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	t.Cleanup(suite.Cleanup)
	return suite
}

// Cleanup stops background work and closes the database
func (ts *TestSuite) Cleanup() {
	ts.Server.Close()
	ts.Uploader.Stop()
	data.CloseDB()
}

func (ts *TestSuite) SetClock(now time.Time) {
	ts.clock.Store(now.Unix())
}

func (ts *TestSuite) Get(t testing.TB, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := ts.Client.Get(ts.Server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func (ts *TestSuite) Post(t testing.TB, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := ts.Client.PostForm(ts.Server.URL+path, form)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func (ts *TestSuite) Login(t testing.TB) {
	t.Helper()
	resp := ts.Post(t, "/login", url.Values{"password": {adminPassword}})
	require.Equal(t, "/config", resp.Header.Get("Location"))
}

func (ts *TestSuite) ConfigFile(t testing.TB) string {
	t.Helper()
	content, err := os.ReadFile(ts.ConfigPath)
	require.NoError(t, err)
	return string(content)
}

// memoryDestination records backup uploads
type memoryDestination struct {
	mu     sync.Mutex
	writes [][]byte
}

func (m *memoryDestination) Write(_ context.Context, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, append([]byte(nil), content...))
	return nil
}

func (m *memoryDestination) Last() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.writes) == 0 {
		return nil
	}
	return m.writes[len(m.writes)-1]
}

func (m *memoryDestination) String() string { return "memory" }

func djForm(name, at, genre string) url.Values {
	return url.Values{
		"add-dj":           {"1"},
		"new-dj-name":      {name},
		"new-dj-time":      {at},
		"new-dj-genre":     {genre},
		"new-dj-instagram": {fmt.Sprintf("%s_official", name)},
	}
}

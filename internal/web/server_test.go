package web

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"eventsite/internal/configstore"
	"eventsite/internal/schedule"
	"eventsite/internal/security"
	"eventsite/internal/site"
)

const testConfig = "[DJ SCHEDULE]\n" +
	"DJ Alpha = 22:00, Techno, alpha\n" +
	"DJ Beta = 23:00, House\n" +
	"\n" +
	"[DRINKS]\n" +
	"Beer = 3,50, 0.5L, Alcoholic\n" +
	"\n" +
	"[HOME]\n" +
	"text = Welcome to **Summer Rave**! <script>alert(1)</script>\n" +
	"image = flyer.png\n" +
	"\n" +
	"[TICKETS]\n" +
	"link = https://tickets.example.com/summer\n" +
	"\n"

type testEnv struct {
	srv        *Server
	http       *httptest.Server
	client     *http.Client
	configPath string
	uploadDir  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.ini")
	require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0o644))

	store, err := configstore.Open(configPath)
	require.NoError(t, err)

	creds := security.NewCredentialStore(filepath.Join(dir, "password.txt"), bcrypt.MinCost)
	_, err = creds.EnsureDefault("rave24")
	require.NoError(t, err)

	resolver, err := schedule.NewResolver("UTC")
	require.NoError(t, err)
	resolver = resolver.WithClock(func() time.Time {
		return time.Date(2026, 7, 18, 22, 15, 0, 0, time.UTC)
	})

	uploadDir := filepath.Join(dir, "static")
	media := site.NewLocalMedia(uploadDir)
	svc, err := site.NewService(site.Options{
		Store:       store,
		Credentials: creds,
		Media:       media,
		Resolver:    resolver,
	})
	require.NoError(t, err)

	srv, err := NewServer(svc, security.NewSessionStore(time.Hour), media, Options{
		CSRFKey:        bytes.Repeat([]byte{7}, 32),
		MaxUploadBytes: 1 << 20,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testEnv{srv: srv, http: ts, client: client, configPath: configPath, uploadDir: uploadDir}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := e.client.PostForm(e.http.URL+path, form)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	resp := e.post(t, "/login", url.Values{"password": {"rave24"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/config", resp.Header.Get("Location"))
}

func (e *testEnv) configFile(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(e.configPath)
	require.NoError(t, err)
	return string(data)
}

func TestHomePageRendersMarkdown(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.get(t, "/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<strong>Summer Rave</strong>")
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, `src="/uploads/flyer.png"`)
}

func TestSchedulePageAndAPI(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.get(t, "/schedule")
	assert.Contains(t, body, "Now playing: <strong>DJ Alpha</strong>")
	assert.Contains(t, body, "width: 50%")

	resp, body := env.get(t, "/api/schedule")
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var envelope struct {
		Success bool          `json:"success"`
		Data    schedule.View `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, "DJ Alpha", envelope.Data.Current)
	assert.Len(t, envelope.Data.Entries, 2)
}

func TestDrinksPage(t *testing.T) {
	env := newTestEnv(t)
	_, body := env.get(t, "/drinks")
	assert.Contains(t, body, "<h2>Alcoholic</h2>")
	assert.Contains(t, body, "3.50 €")
}

func TestTicketsRedirect(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.get(t, "/tickets")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://tickets.example.com/summer", resp.Header.Get("Location"))
}

func TestMissingUploadRedirectsHome(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.get(t, "/uploads/nothing.png")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestConfigRequiresLogin(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.get(t, "/config")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp = env.post(t, "/login", url.Values{"password": {"wrong"}})
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	_, body := env.get(t, "/login")
	assert.Contains(t, body, "Invalid password.")

	env.login(t)
	resp, body = env.get(t, "/config")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `name="DJ SCHEDULE-DJ Alpha-genre" value="Techno"`)

	env.get(t, "/logout")
	resp, _ = env.get(t, "/config")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestPublicPagesDoNotOpenSessions(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/", "/schedule", "/drinks", "/location", "/login", "/api/schedule"} {
		resp, _ := env.get(t, path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
	assert.Equal(t, 0, env.srv.sessions.Len())

	env.post(t, "/login", url.Values{"password": {"wrong"}})
	assert.Equal(t, 1, env.srv.sessions.Len())

	env.login(t)
	assert.Equal(t, 1, env.srv.sessions.Len(), "login rotates the flash session")
}

func TestConfigAddAndDeleteEntries(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	resp := env.post(t, "/config", url.Values{
		"add-drink":          {"1"},
		"new-drink-name":     {"Club-Mate"},
		"new-drink-price":    {"3"},
		"new-drink-category": {"Soft"},
	})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Contains(t, env.configFile(t), "Club-Mate = 3, , Soft\n")

	env.post(t, "/config", url.Values{"delete": {"DRINKS-Club-Mate"}})
	assert.NotContains(t, env.configFile(t), "Club-Mate")

	env.post(t, "/config", url.Values{"delete": {"FLASK-debug"}})
	_, body := env.get(t, "/config")
	assert.Contains(t, body, "Error deleting entry")
}

func TestConfigSaveWithUpload(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("save", "1"))
	require.NoError(t, mw.WriteField("home-text", "Doors at 22:00"))
	require.NoError(t, mw.WriteField("DJ SCHEDULE-DJ Beta-time", "23:30"))
	fw, err := mw.CreateFormFile("home-image", "new flyer.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := env.client.Post(env.http.URL+"/config", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	content := env.configFile(t)
	assert.Contains(t, content, "text = Doors at 22:00\n")
	assert.Contains(t, content, "image = new_flyer.png\n")
	assert.Contains(t, content, "DJ Beta = 23:30, House\n")

	data, err := os.ReadFile(filepath.Join(env.uploadDir, "new_flyer.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	resp, body := env.get(t, "/uploads/new_flyer.png")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "png-bytes", body)

	_, body = env.get(t, "/config")
	assert.Contains(t, body, "Configuration saved successfully!")
}

func TestHandlerRejectsMissingCSRFToken(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("password=rave24"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

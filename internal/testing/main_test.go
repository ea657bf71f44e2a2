package testing

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsite/internal/cleanup"
	"eventsite/internal/configstore"
	"eventsite/internal/data"
	"eventsite/internal/schedule"
	"eventsite/internal/site"
)

var runLoad = flag.Bool("load", false, "Run load tests")

func TestMain(m *testing.M) {
	flag.Parse()
	os.Exit(m.Run())
}

// TestSystemIntegration runs the admin journey against the wired stack
func TestSystemIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	suite := NewTestSuite(t)

	t.Run("FullAdminFlow", func(t *testing.T) {
		testFullAdminFlow(t, suite)
	})

	t.Run("RestoreFlow", func(t *testing.T) {
		testRestoreFlow(t, suite)
	})

	t.Run("HistoryCleanup", func(t *testing.T) {
		testHistoryCleanup(t, suite)
	})

	t.Run("BackupFlow", func(t *testing.T) {
		testBackupFlow(t, suite)
	})
}

func testFullAdminFlow(t *testing.T, suite *TestSuite) {
	suite.Login(t)

	// 1. Build the line-up
	for _, dj := range [][3]string{
		{"DJ Alpha", "20:00", "Techno"},
		{"DJ Beta", "22:00", "House"},
		{"DJ Gamma", "23:30", "Drum & Bass"},
	} {
		resp := suite.Post(t, "/config", djForm(dj[0], dj[1], dj[2]))
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	}
	t.Logf("✓ Line-up created")

	// 2. Edit one slot and the home text in one save
	resp := suite.Post(t, "/config", url.Values{
		"save":                     {"1"},
		"home-text":                {"Summer Rave 2026"},
		"DJ SCHEDULE-DJ Beta-time": {"21:30"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Contains(t, suite.ConfigFile(t), "DJ Beta = 21:30, House, , DJ Beta_official\n")

	// 3. The public API follows the clock
	suite.SetClock(time.Date(2026, 7, 18, 21, 45, 0, 0, time.UTC))
	_, body := suite.Get(t, "/api/schedule")
	var envelope struct {
		Data schedule.View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	assert.Equal(t, "DJ Beta", envelope.Data.Current)
	assert.InDelta(t, 2.0/3.0, envelope.Data.Progress, 1e-9)

	// 4. Every content change left a revision; page views did not
	suite.Get(t, "/")
	suite.Get(t, "/schedule")
	revisions, err := data.ListRevisions(100)
	require.NoError(t, err)
	actions := make([]string, 0, len(revisions))
	for _, rev := range revisions {
		actions = append(actions, rev.Action)
	}
	assert.Equal(t, []string{"save", "add-entity", "add-entity", "add-entity", "ensure-sections"}, actions)
	t.Logf("✓ %d revisions recorded", len(revisions))
}

func testRestoreFlow(t *testing.T, suite *TestSuite) {
	revisions, err := data.ListRevisions(100)
	require.NoError(t, err)
	require.NotEmpty(t, revisions)

	oldest, err := data.GetRevision(revisions[len(revisions)-1].ID)
	require.NoError(t, err)
	require.NoError(t, suite.Site.RestoreRevision([]byte(oldest.Content)))

	assert.Empty(t, suite.Site.Schedule().Entries)
	assert.Equal(t, site.DefaultHomeText, suite.Site.Home().Text)
	assert.Equal(t, oldest.Content, suite.ConfigFile(t))

	latest, err := data.ListRevisions(1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "restore", latest[0].Action)
	assert.Equal(t, oldest.Checksum, latest[0].Checksum)
}

func testHistoryCleanup(t *testing.T, suite *TestSuite) {
	removed := cleanup.RunCleanup(2)
	assert.Greater(t, removed, 0)

	revisions, err := data.ListRevisions(100)
	require.NoError(t, err)
	assert.Len(t, revisions, 2)
}

func testBackupFlow(t *testing.T, suite *TestSuite) {
	require.NoError(t, suite.Site.AddEntity(site.SectionDrinks, "Club Mate", map[string]string{
		"price":    "3,00",
		"amount":   "0.5L",
		"category": "Soft",
	}))
	suite.Uploader.Stop()

	assert.Equal(t, suite.ConfigFile(t), string(suite.Backup.Last()))
}

// TestDegradedViews checks that bad stored values never break a page
func TestDegradedViews(t *testing.T) {
	suite := NewTestSuite(t)
	require.NoError(t, suite.Store.Update("seed", func(doc *configstore.Document) error {
		if err := doc.Set(site.SectionSchedule, "DJ Broken", "late, Techno"); err != nil {
			return err
		}
		return doc.Set(site.SectionDrinks, "Beer", "cheap, 0.5L, Alcoholic")
	}))
	before := suite.ConfigFile(t)

	resp, body := suite.Get(t, "/schedule")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Error calculating current DJ")
	assert.Contains(t, string(body), "DJ Broken")

	resp, body = suite.Get(t, "/drinks")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Error loading drinks")
	assert.Contains(t, string(body), "No drinks listed yet.")

	assert.Equal(t, before, suite.ConfigFile(t))
}

// Load tests (only run when -load flag is set)
func TestLoadTesting(t *testing.T) {
	if !*runLoad {
		t.Skip("Load testing disabled (use -load flag to enable)")
	}

	suite := NewTestSuite(t)

	t.Run("ConcurrentAdds", func(t *testing.T) {
		testConcurrentAdds(t, suite, 50)
	})

	t.Run("ConcurrentReaders", func(t *testing.T) {
		testConcurrentReaders(t, suite, 200)
	})
}

func testConcurrentAdds(t *testing.T, suite *TestSuite, n int) {
	start := time.Now()
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			errs <- suite.Site.AddEntity(site.SectionDrinks, fmt.Sprintf("Drink %03d", id),
				map[string]string{"price": fmt.Sprintf("%d.50", id%10)})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	content := suite.ConfigFile(t)
	for i := 0; i < n; i++ {
		assert.Contains(t, content, fmt.Sprintf("Drink %03d = ", i))
	}
	t.Logf("Concurrent adds: %d entries in %v", n, time.Since(start))
}

func testConcurrentReaders(t *testing.T, suite *TestSuite, n int) {
	start := time.Now()
	var wg sync.WaitGroup
	failures := make(chan string, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			path := "/api/drinks"
			if id%2 == 0 {
				path = "/api/schedule"
			}
			resp, err := suite.Client.Get(suite.Server.URL + path)
			if err != nil {
				failures <- err.Error()
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				failures <- fmt.Sprintf("%s: %d", path, resp.StatusCode)
			}
		}(i)
	}
	wg.Wait()
	close(failures)

	var msgs []string
	for msg := range failures {
		msgs = append(msgs, msg)
	}
	assert.Empty(t, msgs, strings.Join(msgs, "\n"))
	t.Logf("Concurrent readers: %d requests in %v", n, time.Since(start))
}

// Benchmark tests
func BenchmarkScheduleView(b *testing.B) {
	suite := NewTestSuite(b)
	for i := 0; i < 20; i++ {
		err := suite.Site.AddEntity(site.SectionSchedule, fmt.Sprintf("DJ %02d", i),
			map[string]string{"time": fmt.Sprintf("%02d:00", i)})
		if err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		suite.Site.Schedule()
	}
}

func BenchmarkConfigParse(b *testing.B) {
	suite := NewTestSuite(b)
	content := []byte(suite.ConfigFile(b))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := configstore.Parse(strings.NewReader(string(content))); err != nil {
			b.Fatal(err)
		}
	}
}

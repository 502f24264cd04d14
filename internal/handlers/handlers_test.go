package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"pr-reaction-bridge/internal/auth"
	"pr-reaction-bridge/internal/clock"
	"pr-reaction-bridge/internal/config"
	"pr-reaction-bridge/internal/models"
	"pr-reaction-bridge/internal/services"
	"pr-reaction-bridge/internal/utils"
)

const (
	testSlackSecret  = "slack-signing-secret"
	testGitHubSecret = "github-webhook-secret"
	testAdminKey     = "admin-key"

	pr42 = "https://github.com/acme/widgets/pull/42"
	pr43 = "https://github.com/acme/widgets/pull/43"
)

var testNow = time.Unix(1700000000, 0).UTC()

var testEmoji = config.EmojiConfig{
	Merged:           "shipit",
	Closed:           "wastebasket",
	Commented:        "scroll",
	ChangesRequested: "warning",
	Approved:         "white_check_mark",
}

type reaction struct {
	Channel   string
	Timestamp string
	Emoji     string
}

type recordingReactor struct {
	mu    sync.Mutex
	calls []reaction
}

func (r *recordingReactor) AddReaction(_ context.Context, channel, timestamp, emoji string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, reaction{Channel: channel, Timestamp: timestamp, Emoji: emoji})
	return nil
}

func (r *recordingReactor) reactions() []reaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reaction(nil), r.calls...)
}

// failingStore fails every call.
type failingStore struct{ err error }

func (f failingStore) ListAll(context.Context) ([]*models.TrackingRecord, error) { return nil, f.err }
func (f failingStore) FindByURL(context.Context, string) ([]*models.TrackingRecord, error) {
	return nil, f.err
}
func (f failingStore) InsertAll(context.Context, []string, models.ChatLocation, time.Time) error {
	return f.err
}
func (f failingStore) DeleteAll(context.Context, []string, models.ChatLocation) error { return f.err }
func (f failingStore) Reconcile(context.Context, *services.Retraction, *services.Assertion) error {
	return f.err
}

type testApp struct {
	router  *gin.Engine
	store   services.TrackingStore
	reactor *recordingReactor
	clock   *clock.Fixed
}

type appOptions struct {
	store           services.TrackingStore
	trackDuplicates bool
	adminKey        string
}

func newTestApp(t *testing.T, opts appOptions) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := opts.store
	if store == nil {
		store = services.NewMemoryTrackingStore()
	}
	reactor := &recordingReactor{}
	clk := clock.NewFixed(testNow)

	dispatcher := services.NewNotificationService(store, reactor, testEmoji, time.Second)
	router := NewRouter(RouterConfig{
		Slack:         NewSlackHandler(store, utils.NewPRURLExtractor("github.com"), clk, opts.trackDuplicates),
		GitHub:        NewGitHubHandler(dispatcher),
		Records:       NewRecordsHandler(store),
		SlackVerifier: auth.NewSlackVerifier(testSlackSecret, auth.DefaultSlackMaxAge, clk),
		GitHubSecret:  testGitHubSecret,
		APIAdminKey:   opts.adminKey,
	})

	return &testApp{router: router, store: store, reactor: reactor, clock: clk}
}

func (a *testApp) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func slackRequest(t *testing.T, body string, sentAt time.Time) *http.Request {
	t.Helper()
	ts := strconv.FormatInt(sentAt.Unix(), 10)
	req, err := http.NewRequest(http.MethodPost, "/webhooks/slack", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.SlackTimestampHeader, ts)
	req.Header.Set(auth.SlackSignatureHeader, auth.SlackSignature(testSlackSecret, ts, []byte(body)))
	return req
}

func githubRequest(t *testing.T, eventType, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if eventType != "" {
		req.Header.Set("X-GitHub-Event", eventType)
	}
	req.Header.Set("X-GitHub-Delivery", "72d3162e-cc78-11e3-81ab-4c9367dc0958")
	req.Header.Set(auth.GitHubSignatureHeader, auth.GitHubSignature([]byte(testGitHubSecret), []byte(body)))
	return req
}

func messageCreated(channel, ts, text string) string {
	return `{"type":"event_callback","token":"tok","team_id":"T1","api_app_id":"A1","event_id":"Ev1",
		"event_time":1700000000,"event":{"type":"message","channel":"` + channel + `","user":"U1",
		"text":"` + text + `","ts":"` + ts + `","event_ts":"` + ts + `","channel_type":"channel"}}`
}

func messageChanged(channel, ts, previousText, text string) string {
	return `{"type":"event_callback","token":"tok","team_id":"T1","api_app_id":"A1","event_id":"Ev2",
		"event_time":1700000100,"event":{"type":"message","subtype":"message_changed","channel":"` + channel + `",
		"hidden":true,"ts":"1700000100.000200","event_ts":"1700000100.000200",
		"message":{"type":"message","user":"U1","text":"` + text + `","ts":"` + ts + `"},
		"previous_message":{"type":"message","user":"U1","text":"` + previousText + `","ts":"` + ts + `"}}}`
}

func messageDeleted(channel, ts, previousText string) string {
	return `{"type":"event_callback","token":"tok","team_id":"T1","api_app_id":"A1","event_id":"Ev3",
		"event_time":1700000200,"event":{"type":"message","subtype":"message_deleted","channel":"` + channel + `",
		"hidden":true,"deleted_ts":"` + ts + `","ts":"1700000200.000300","event_ts":"1700000200.000300",
		"previous_message":{"type":"message","user":"U1","text":"` + previousText + `","ts":"` + ts + `"}}}`
}

func pullRequestClosed(url string, merged bool) string {
	mergedAt := "null"
	if merged {
		mergedAt = `"2023-11-14T22:20:00Z"`
	}
	return `{"action":"closed","number":42,"pull_request":{"number":42,"state":"closed","merged_at":` + mergedAt + `,
		"html_url":"` + url + `","_links":{"html":{"href":"` + url + `"}}}}`
}

// spyStore counts calls to each store operation before delegating.
type spyStore struct {
	services.TrackingStore

	mu    sync.Mutex
	calls map[string]int
}

func newSpyStore() *spyStore {
	return &spyStore{TrackingStore: services.NewMemoryTrackingStore(), calls: map[string]int{}}
}

func (s *spyStore) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
}

func (s *spyStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *spyStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *spyStore) ListAll(ctx context.Context) ([]*models.TrackingRecord, error) {
	s.record("ListAll")
	return s.TrackingStore.ListAll(ctx)
}

func (s *spyStore) FindByURL(ctx context.Context, url string) ([]*models.TrackingRecord, error) {
	s.record("FindByURL")
	return s.TrackingStore.FindByURL(ctx, url)
}

func (s *spyStore) InsertAll(ctx context.Context, urls []string, loc models.ChatLocation, at time.Time) error {
	s.record("InsertAll")
	return s.TrackingStore.InsertAll(ctx, urls, loc, at)
}

func (s *spyStore) DeleteAll(ctx context.Context, urls []string, loc models.ChatLocation) error {
	s.record("DeleteAll")
	return s.TrackingStore.DeleteAll(ctx, urls, loc)
}

func (s *spyStore) Reconcile(ctx context.Context, retract *services.Retraction, assert *services.Assertion) error {
	s.record("Reconcile")
	return s.TrackingStore.Reconcile(ctx, retract, assert)
}

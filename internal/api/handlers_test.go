package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"WeeklyDigest/internal/domain"
	"WeeklyDigest/internal/infrastructure/rss"
	"WeeklyDigest/internal/usecase"
)

type fakeStore struct {
	records map[string]domain.PostRecord
	listErr error
}

func newFakeStore(records ...domain.PostRecord) *fakeStore {
	s := &fakeStore{records: map[string]domain.PostRecord{}}
	for _, record := range records {
		s.records[record.WeekKey] = record
	}
	return s
}

func (s *fakeStore) Save(_ context.Context, record domain.PostRecord) error {
	s.records[record.WeekKey] = record
	return nil
}

func (s *fakeStore) Load(_ context.Context, weekKey string) (domain.PostRecord, bool, error) {
	record, ok := s.records[weekKey]
	return record, ok, nil
}

func (s *fakeStore) List(_ context.Context, status domain.PostStatus, limit int) ([]domain.PostRecord, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.PostRecord
	for _, record := range s.records {
		if status == "" || record.Status == status {
			out = append(out, record)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) Delete(_ context.Context, weekKey string) error {
	delete(s.records, weekKey)
	return nil
}

type fakeScheduler struct {
	triggerErr error
	lastType   domain.JobType
	result     domain.PipelineResult
}

func (f *fakeScheduler) TriggerPreview(ctx context.Context) (domain.PipelineResult, error) {
	f.lastType = domain.JobPreview
	return f.result, f.triggerErr
}

func (f *fakeScheduler) TriggerPublish(ctx context.Context) (domain.PipelineResult, error) {
	f.lastType = domain.JobPublish
	return f.result, f.triggerErr
}

func (f *fakeScheduler) Jobs() []domain.ScheduledJobSpec {
	return []domain.ScheduledJobSpec{
		{Type: domain.JobPreview, Day: time.Thursday, Hour: 18, Minute: 0, Timezone: "Europe/London", MaxInstances: 1},
		{Type: domain.JobPublish, Day: time.Friday, Hour: 10, Minute: 0, Timezone: "Europe/London", MaxInstances: 1},
	}
}

func (f *fakeScheduler) LastResult(jobType domain.JobType) (domain.PipelineResult, bool) {
	if jobType == domain.JobPreview {
		return domain.PipelineResult{WeekKey: "2025.W46", Status: domain.RunSuccess}, true
	}
	return domain.PipelineResult{}, false
}

func (f *fakeScheduler) State() usecase.SchedulerState {
	return usecase.SchedulerRunning
}

type fakePublisher struct {
	outcome domain.PublishOutcome
	err     error
}

func (f *fakePublisher) PublishStored(ctx context.Context, weekKey string) (domain.PublishOutcome, error) {
	return f.outcome, f.err
}

type fakeBroker struct {
	authErr     error
	exchangeErr error
	gotCode     string
}

func (f *fakeBroker) AuthURL(state string) (string, error) {
	if f.authErr != nil {
		return "", f.authErr
	}
	return "https://www.linkedin.com/oauth/v2/authorization?state=" + state, nil
}

func (f *fakeBroker) Exchange(ctx context.Context, code string) error {
	f.gotCode = code
	return f.exchangeErr
}

type fakeScout struct {
	feeds     []string
	candidate rss.SourceCandidate
	err       error
}

func (f *fakeScout) DiscoverFeeds(ctx context.Context, pageURL string, limit int) ([]string, error) {
	return f.feeds, f.err
}

func (f *fakeScout) Evaluate(ctx context.Context, feedURL string) (rss.SourceCandidate, error) {
	return f.candidate, f.err
}

type fixture struct {
	store     *fakeStore
	scheduler *fakeScheduler
	publisher *fakePublisher
	broker    *fakeBroker
	scout     *fakeScout
	router    http.Handler
}

func newFixture(records ...domain.PostRecord) *fixture {
	f := &fixture{
		store:     newFakeStore(records...),
		scheduler: &fakeScheduler{},
		publisher: &fakePublisher{},
		broker:    &fakeBroker{},
		scout:     &fakeScout{},
	}
	f.router = NewServer(f.store, f.scheduler, f.publisher, f.broker, f.scout, nil).Router()
	return f
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) doJSON(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func draftRecord(weekKey string) domain.PostRecord {
	now := time.Date(2025, 11, 13, 18, 0, 0, 0, time.UTC)
	return domain.PostRecord{
		WeekKey:   weekKey,
		Content:   "digest for " + weekKey,
		Status:    domain.PostDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	w := newFixture().do(t, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	decode(t, w, &body)
	if body["status"] != "healthy" || body["state"] != "running" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestListPosts(t *testing.T) {
	t.Parallel()

	published := draftRecord("2025.W45")
	published.Status = domain.PostPublished
	f := newFixture(draftRecord("2025.W46"), published)

	w := f.do(t, http.MethodGet, "/v1/posts")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Posts []domain.PostRecord `json:"posts"`
		Count int                 `json:"count"`
	}
	decode(t, w, &body)
	if body.Count != 2 {
		t.Fatalf("expected 2 posts, got %d", body.Count)
	}

	w = f.do(t, http.MethodGet, "/v1/posts?status=published")
	decode(t, w, &body)
	if body.Count != 1 || body.Posts[0].WeekKey != "2025.W45" {
		t.Fatalf("status filter failed: %+v", body)
	}

	if w := f.do(t, http.MethodGet, "/v1/posts?status=bogus"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/v1/posts?limit=zero"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestCreatePost(t *testing.T) {
	t.Parallel()

	f := newFixture()

	w := f.doJSON(t, http.MethodPost, "/v1/posts", `{"week_key":"2025.W46","content":"Manual digest édition"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var record domain.PostRecord
	decode(t, w, &record)
	if record.Status != domain.PostDraft {
		t.Fatalf("expected draft, got %s", record.Status)
	}
	if record.Metadata.CharCount != len([]rune(record.Content)) {
		t.Fatalf("char count must count runes, got %d for %q", record.Metadata.CharCount, record.Content)
	}
	stored, ok := f.store.records["2025.W46"]
	if !ok || stored.Content != "Manual digest édition" {
		t.Fatalf("record not persisted: %+v", stored)
	}

	if w := f.doJSON(t, http.MethodPost, "/v1/posts", `{"week_key":"junk","content":"x"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad week key, got %d", w.Code)
	}
	if w := f.doJSON(t, http.MethodPost, "/v1/posts", `{"week_key":"2025.W47","content":"  "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank content, got %d", w.Code)
	}
	if w := f.doJSON(t, http.MethodPost, "/v1/posts", `not json`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", w.Code)
	}
}

func TestCreatePostOverwritesDraft(t *testing.T) {
	t.Parallel()

	existing := draftRecord("2025.W46")
	existing.RetryCount = 2
	f := newFixture(existing)

	w := f.doJSON(t, http.MethodPost, "/v1/posts", `{"week_key":"2025.W46","content":"rewritten"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	stored := f.store.records["2025.W46"]
	if stored.Content != "rewritten" {
		t.Fatalf("draft not replaced: %+v", stored)
	}
	if !stored.CreatedAt.Equal(existing.CreatedAt) {
		t.Fatalf("replacing a draft must keep its creation time")
	}
	if stored.RetryCount != 2 {
		t.Fatalf("retry history lost, got %d", stored.RetryCount)
	}
}

func TestCreatePostRefusedForPublishedWeek(t *testing.T) {
	t.Parallel()

	record := draftRecord("2025.W46")
	record.Status = domain.PostPublished
	f := newFixture(record)

	if w := f.doJSON(t, http.MethodPost, "/v1/posts", `{"week_key":"2025.W46","content":"late edit"}`); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a published week, got %d", w.Code)
	}
	if stored := f.store.records["2025.W46"]; stored.Content != record.Content {
		t.Fatalf("published post must not be overwritten")
	}
}

func TestGetPost(t *testing.T) {
	t.Parallel()

	f := newFixture(draftRecord("2025.W46"))

	w := f.do(t, http.MethodGet, "/v1/posts/2025.W46")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var record domain.PostRecord
	decode(t, w, &record)
	if record.WeekKey != "2025.W46" {
		t.Fatalf("unexpected record: %+v", record)
	}

	if w := f.do(t, http.MethodGet, "/v1/posts/2025.W01"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for absent week, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/v1/posts/not-a-week"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad week key, got %d", w.Code)
	}
}

func TestApprovePost(t *testing.T) {
	t.Parallel()

	f := newFixture(draftRecord("2025.W46"))

	w := f.do(t, http.MethodPost, "/v1/posts/2025.W46/approve")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var record domain.PostRecord
	decode(t, w, &record)
	if record.Status != domain.PostApproved {
		t.Fatalf("expected approved, got %s", record.Status)
	}
	if record.ApprovedAt == nil {
		t.Fatalf("approved_at must be set")
	}
	if stored := f.store.records["2025.W46"]; stored.Status != domain.PostApproved {
		t.Fatalf("approval not persisted")
	}
}

func TestApprovePublishedPostRejected(t *testing.T) {
	t.Parallel()

	record := draftRecord("2025.W46")
	record.Status = domain.PostPublished
	f := newFixture(record)

	if w := f.do(t, http.MethodPost, "/v1/posts/2025.W46/approve"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for re-approving a published post, got %d", w.Code)
	}
}

func TestPublishPost(t *testing.T) {
	t.Parallel()

	f := newFixture(draftRecord("2025.W46"))
	f.publisher.outcome = domain.PublishOutcome{
		WeekKey: "2025.W46",
		Success: true,
		Status:  domain.PostPublished,
		PostID:  "urn:li:share:1",
	}

	w := f.do(t, http.MethodPost, "/v1/posts/2025.W46/publish")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var outcome domain.PublishOutcome
	decode(t, w, &outcome)
	if !outcome.Success || outcome.PostID != "urn:li:share:1" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestPublishPostFailures(t *testing.T) {
	t.Parallel()

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.publisher.err = usecase.ErrPostNotFound
		if w := f.do(t, http.MethodPost, "/v1/posts/2025.W46/publish"); w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
	})

	t.Run("publish error", func(t *testing.T) {
		t.Parallel()
		f := newFixture(draftRecord("2025.W46"))
		f.publisher.outcome = domain.PublishOutcome{
			WeekKey: "2025.W46",
			Status:  domain.PostFailed,
			Error:   "rate limited",
		}
		if w := f.do(t, http.MethodPost, "/v1/posts/2025.W46/publish"); w.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", w.Code)
		}
	})

	t.Run("invalid week key", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		if w := f.do(t, http.MethodPost, "/v1/posts/junk/publish"); w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})
}

func TestDeletePost(t *testing.T) {
	t.Parallel()

	f := newFixture(draftRecord("2025.W46"))

	if w := f.do(t, http.MethodDelete, "/v1/posts/2025.W46"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if _, ok := f.store.records["2025.W46"]; ok {
		t.Fatalf("record still present after delete")
	}
	if w := f.do(t, http.MethodDelete, "/v1/posts/2025.W46"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for repeated delete, got %d", w.Code)
	}
}

func TestDeletePublishedPostRefused(t *testing.T) {
	t.Parallel()

	record := draftRecord("2025.W46")
	record.Status = domain.PostPublished
	f := newFixture(record)

	if w := f.do(t, http.MethodDelete, "/v1/posts/2025.W46"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if _, ok := f.store.records["2025.W46"]; !ok {
		t.Fatalf("published record must not be deleted")
	}
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	w := newFixture().do(t, http.MethodGet, "/v1/jobs")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		State string    `json:"state"`
		Jobs  []jobView `json:"jobs"`
	}
	decode(t, w, &body)
	if body.State != "running" {
		t.Fatalf("unexpected state %s", body.State)
	}
	if len(body.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(body.Jobs))
	}
	if body.Jobs[0].Day != "Thursday" || body.Jobs[0].Time != "18:00" {
		t.Fatalf("unexpected preview job: %+v", body.Jobs[0])
	}
	if body.Jobs[0].LastResult == nil {
		t.Fatalf("preview job should expose its last result")
	}
	if body.Jobs[1].LastResult != nil {
		t.Fatalf("publish job has no result yet")
	}
}

func TestTriggerJob(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.scheduler.result = domain.PipelineResult{WeekKey: "2025.W46", Status: domain.RunSuccess}

	w := f.do(t, http.MethodPost, "/v1/jobs/preview/trigger")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if f.scheduler.lastType != domain.JobPreview {
		t.Fatalf("expected preview trigger, got %s", f.scheduler.lastType)
	}

	f.do(t, http.MethodPost, "/v1/jobs/publish/trigger")
	if f.scheduler.lastType != domain.JobPublish {
		t.Fatalf("expected publish trigger, got %s", f.scheduler.lastType)
	}

	if w := f.do(t, http.MethodPost, "/v1/jobs/nonsense/trigger"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown job type, got %d", w.Code)
	}

	f.scheduler.triggerErr = usecase.ErrJobAlreadyRunning
	if w := f.do(t, http.MethodPost, "/v1/jobs/preview/trigger"); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for busy job, got %d", w.Code)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	published := draftRecord("2025.W44")
	published.Status = domain.PostPublished
	failed := draftRecord("2025.W45")
	failed.Status = domain.PostFailed
	f := newFixture(draftRecord("2025.W46"), published, failed)

	w := f.do(t, http.MethodGet, "/v1/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Total    int            `json:"total"`
		ByStatus map[string]int `json:"by_status"`
	}
	decode(t, w, &body)
	if body.Total != 3 {
		t.Fatalf("expected total 3, got %d", body.Total)
	}
	if body.ByStatus["draft"] != 1 || body.ByStatus["published"] != 1 || body.ByStatus["failed"] != 1 {
		t.Fatalf("unexpected counts: %v", body.ByStatus)
	}
}

func TestStatsStoreError(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.listErr = errors.New("backend down")
	if w := f.do(t, http.MethodGet, "/v1/stats"); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestDiscoverSources(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.scout.feeds = []string{"https://site.example/feed", "https://site.example/atom.xml"}

	w := f.do(t, http.MethodGet, "/v1/sources/discover?url=https://site.example")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Feeds []string `json:"feeds"`
		Count int      `json:"count"`
	}
	decode(t, w, &body)
	if body.Count != 2 || len(body.Feeds) != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}

	if w := f.do(t, http.MethodGet, "/v1/sources/discover"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without url, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/v1/sources/discover?url=https://site.example&limit=-1"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestEvaluateSource(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.scout.candidate = rss.SourceCandidate{
		FeedURL: "https://site.example/feed",
		Score:   0.82,
		Status:  rss.CandidateApproved,
	}

	w := f.do(t, http.MethodGet, "/v1/sources/evaluate?feed=https://site.example/feed")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var candidate rss.SourceCandidate
	decode(t, w, &candidate)
	if candidate.Status != rss.CandidateApproved {
		t.Fatalf("unexpected candidate: %+v", candidate)
	}

	if w := f.do(t, http.MethodGet, "/v1/sources/evaluate"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without feed, got %d", w.Code)
	}

	f.scout.err = errors.New("unreachable")
	if w := f.do(t, http.MethodGet, "/v1/sources/evaluate?feed=https://x.example/rss"); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for scout error, got %d", w.Code)
	}
}

func TestOAuthLogin(t *testing.T) {
	t.Parallel()

	f := newFixture()
	w := f.do(t, http.MethodGet, "/v1/oauth/login")
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); !strings.Contains(loc, "linkedin.com/oauth") {
		t.Fatalf("unexpected redirect target: %s", loc)
	}

	f.broker.authErr = errors.New("missing client_id")
	if w := f.do(t, http.MethodGet, "/v1/oauth/login"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when OAuth is unconfigured, got %d", w.Code)
	}
}

func TestOAuthCallback(t *testing.T) {
	t.Parallel()

	f := newFixture()

	w := f.do(t, http.MethodGet, "/v1/oauth/callback?code=auth-code")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if f.broker.gotCode != "auth-code" {
		t.Fatalf("code not passed to broker, got %q", f.broker.gotCode)
	}

	if w := f.do(t, http.MethodGet, "/v1/oauth/callback"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without code, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/v1/oauth/callback?error=access_denied"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for provider error, got %d", w.Code)
	}
}

package reports

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/waste-rewards/internal/common"
	"serotonyl.ru/waste-rewards/internal/features/ledger"
	"serotonyl.ru/waste-rewards/internal/media"
	"serotonyl.ru/waste-rewards/internal/session"
	"serotonyl.ru/waste-rewards/internal/verification"
)

const testImage = "data:image/jpeg;base64,aGVsbG8="

type stubVerifier struct {
	mu     sync.Mutex
	result verification.Result
	err    error
	calls  int
}

func (v *stubVerifier) Verify(_ context.Context, _ media.Image, _ string) (verification.Result, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.result, v.err
}

type sentNotification struct {
	userID  int64
	message string
	typ     string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, userID int64, message, typ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{userID, message, typ})
}

type fixture struct {
	svc      *Service
	store    *memStore
	verifier *stubVerifier
	notifier *recordingNotifier
}

func newFixture() *fixture {
	f := &fixture{
		store:    newMemStore(),
		verifier: &stubVerifier{result: verification.Result{WasteTypeMatch: true, Confidence: 0.9}},
		notifier: &recordingNotifier{},
	}
	f.svc = NewService(f.store, f.verifier, media.InlineStore{}, f.notifier, Options{
		ReportReward:  10,
		CollectReward: 10,
		ClaimTTL:      48 * time.Hour,
	})
	return f
}

func (f *fixture) report(t *testing.T, userID int64, location string) *Report {
	t.Helper()
	res, err := f.svc.CreateReport(context.Background(), userID, NewReport{
		Location: location, WasteType: "plastic", Amount: "5 kg",
	})
	require.NoError(t, err)
	return res.Report
}

func TestCreateReportCreditsAuthor(t *testing.T) {
	f := newFixture()

	res, err := f.svc.CreateReport(context.Background(), 1, NewReport{
		Location: " Central Park ", WasteType: "plastic", Amount: "5 kg", Image: testImage,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, res.Report.Status)
	require.Equal(t, "Central Park", res.Report.Location)
	require.Equal(t, testImage, res.Report.ImageURL)
	require.Equal(t, int64(10), res.Wallet.Points)
	require.Equal(t, []string{ledger.TxEarnedReport}, f.store.journal)

	require.Len(t, f.notifier.sent, 1)
	require.Equal(t, sentNotification{1, "You've earned 10 points for reporting waste!", "reward"}, f.notifier.sent[0])
}

func TestCreateReportValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cases := map[string]NewReport{
		"no location": {WasteType: "glass", Amount: "1 kg"},
		"no type":     {Location: "Here", Amount: "1 kg"},
		"no amount":   {Location: "Here", WasteType: "glass"},
		"long type":   {Location: "Here", WasteType: strings.Repeat("x", 256), Amount: "1"},
		"bad image":   {Location: "Here", WasteType: "glass", Amount: "1", Image: "not-a-data-uri"},
	}
	for name, in := range cases {
		_, err := f.svc.CreateReport(ctx, 1, in)
		require.ErrorIs(t, err, common.ErrInvalidInput, name)
	}
	require.Empty(t, f.store.journal)
	require.Empty(t, f.notifier.sent)
}

func TestClaimLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.report(t, 1, "Beach")

	claimed, err := f.svc.Claim(ctx, 2, r.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, claimed.Status)
	require.Equal(t, int64(2), *claimed.CollectorID)

	_, err = f.svc.Claim(ctx, 3, r.ID)
	require.ErrorIs(t, err, common.ErrReportNotClaimable)

	_, err = f.svc.Claim(ctx, 3, 999)
	require.ErrorIs(t, err, common.ErrReportNotFound)

	_, err = f.svc.Complete(ctx, 3, r.ID)
	require.ErrorIs(t, err, common.ErrNotAssignedCollector)
	require.ErrorIs(t, err, common.ErrForbidden)

	done, err := f.svc.Complete(ctx, 2, r.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)

	_, err = f.svc.Complete(ctx, 2, r.ID)
	require.ErrorIs(t, err, common.ErrReportAlreadyCollected)
}

func TestVerifyCollectionAwardsCollector(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.report(t, 1, "Market")
	_, err := f.svc.Claim(ctx, 2, r.ID)
	require.NoError(t, err)

	out, err := f.svc.VerifyCollection(ctx, 2, r.ID, testImage)
	require.NoError(t, err)
	require.True(t, out.Verified)
	require.Equal(t, StatusVerified, out.Report.Status)
	require.Equal(t, int64(10), out.Reward)
	require.Equal(t, int64(10), out.Wallet.Points)
	require.Equal(t, r.ID, out.Collection.ReportID)

	require.Equal(t, []string{ledger.TxEarnedReport, ledger.TxEarnedCollect}, f.store.journal)
	require.Len(t, f.notifier.sent, 2)
	require.Equal(t, "You've earned 10 points for collecting waste!", f.notifier.sent[1].message)

	list, err := f.svc.CollectedByCollector(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestVerifyCollectionTwiceDoesNotCallVerifier(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.report(t, 1, "Market")
	_, err := f.svc.Claim(ctx, 2, r.ID)
	require.NoError(t, err)
	_, err = f.svc.VerifyCollection(ctx, 2, r.ID, testImage)
	require.NoError(t, err)
	require.Equal(t, 1, f.verifier.calls)

	_, err = f.svc.VerifyCollection(ctx, 2, r.ID, testImage)
	require.ErrorIs(t, err, common.ErrReportAlreadyCollected)
	require.Equal(t, 1, f.verifier.calls)
	require.Equal(t, int64(10), f.store.balances[2])
}

func TestVerifyCollectionBelowThreshold(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.report(t, 1, "Harbor")
	_, err := f.svc.Claim(ctx, 2, r.ID)
	require.NoError(t, err)

	f.verifier.result = verification.Result{WasteTypeMatch: true, Confidence: 0.7}
	out, err := f.svc.VerifyCollection(ctx, 2, r.ID, testImage)
	require.NoError(t, err)
	require.False(t, out.Verified)
	require.Equal(t, StatusInProgress, out.Report.Status)
	require.NotNil(t, out.Report.VerificationResult)
	require.Zero(t, f.store.balances[2])

	f.verifier.result = verification.Result{WasteTypeMatch: false, Confidence: 0.99}
	out, err = f.svc.VerifyCollection(ctx, 2, r.ID, testImage)
	require.NoError(t, err)
	require.False(t, out.Verified)

	stored, err := f.store.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, stored.Status)
	require.False(t, stored.VerificationResult.WasteTypeMatch)
}

func TestVerifyCollectionGuards(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.report(t, 1, "Station")

	_, err := f.svc.VerifyCollection(ctx, 2, r.ID, testImage)
	require.ErrorIs(t, err, common.ErrReportNotClaimed)

	_, err = f.svc.Claim(ctx, 2, r.ID)
	require.NoError(t, err)

	_, err = f.svc.VerifyCollection(ctx, 3, r.ID, testImage)
	require.ErrorIs(t, err, common.ErrNotAssignedCollector)

	_, err = f.svc.VerifyCollection(ctx, 2, r.ID, "")
	require.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = f.svc.VerifyCollection(ctx, 2, 404, testImage)
	require.ErrorIs(t, err, common.ErrReportNotFound)

	f.verifier.err = common.Upstream("verification service is unavailable", nil)
	_, err = f.svc.VerifyCollection(ctx, 2, r.ID, testImage)
	require.ErrorIs(t, err, common.ErrUpstream)

	require.Equal(t, 1, f.verifier.calls)
	require.Zero(t, f.store.balances[2])
}

func TestListTasksPagination(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		f.report(t, 1, "North Street")
	}
	f.report(t, 1, "South Avenue")

	page, err := f.svc.ListTasks(ctx, "", 0)
	require.NoError(t, err)
	require.Equal(t, 1, page.Page)
	require.Equal(t, 8, page.Total)
	require.Equal(t, 2, page.PageCount)
	require.Len(t, page.Tasks, TasksPerPage)
	require.Equal(t, "South Avenue", page.Tasks[0].Location)

	page, err = f.svc.ListTasks(ctx, "north", 2)
	require.NoError(t, err)
	require.Equal(t, 7, page.Total)
	require.Len(t, page.Tasks, 2)

	page, err = f.svc.ListTasks(ctx, "nowhere", 1)
	require.NoError(t, err)
	require.Equal(t, 0, page.Total)
	require.Equal(t, 1, page.PageCount)
	require.NotNil(t, page.Tasks)
}

func TestRecentReportsLimit(t *testing.T) {
	f := newFixture()
	for i := 0; i < 12; i++ {
		f.report(t, 1, "Somewhere")
	}
	list, err := f.svc.RecentReports(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, DefaultRecentLimit)
	require.Equal(t, int64(12), list[0].ID)
}

func TestReleaseStaleClaims(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.report(t, 1, "Depot")
	_, err := f.svc.Claim(ctx, 2, r.ID)
	require.NoError(t, err)

	f.svc.now = func() time.Time { return f.store.clock.Add(time.Hour) }
	n, err := f.svc.ReleaseStaleClaims(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	f.svc.now = func() time.Time { return f.store.clock.Add(49 * time.Hour) }
	n, err = f.svc.ReleaseStaleClaims(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	got, err := f.store.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Nil(t, got.CollectorID)
}

func TestVerifyHandler(t *testing.T) {
	f := newFixture()
	r := f.report(t, 1, "Plaza")
	_, err := f.svc.Claim(context.Background(), 2, r.ID)
	require.NoError(t, err)

	h := NewHandler(f.svc)
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := session.WithSession(req.Context(), session.Session{UserID: 2, Role: session.RoleUser})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	router.Post("/api/tasks/{id}/verify", h.Verify)
	router.Get("/api/tasks", h.ListTasks)

	body := `{"image":"` + testImage + `"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tasks/1/verify", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var out VerifyOutcome
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.True(t, out.Verified)
	require.Equal(t, int64(10), out.Wallet.Points)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tasks/1/verify", strings.NewReader(body)))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks?search=pla&page=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var page TaskPage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Equal(t, 1, page.Total)
}

func TestVerifyHandlerUpstreamIs502(t *testing.T) {
	f := newFixture()
	r := f.report(t, 1, "Plaza")
	_, err := f.svc.Claim(context.Background(), 2, r.ID)
	require.NoError(t, err)
	f.verifier.err = common.Upstream("verification service failed", nil)

	h := NewHandler(f.svc)
	router := chi.NewRouter()
	router.Post("/api/tasks/{id}/verify", func(w http.ResponseWriter, req *http.Request) {
		ctx := session.WithSession(req.Context(), session.Session{UserID: 2, Role: session.RoleUser})
		h.Verify(w, req.WithContext(ctx))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tasks/1/verify",
		strings.NewReader(`{"image":"`+testImage+`"}`)))
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

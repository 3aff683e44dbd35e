package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/hassaanshafqatt/reels-ui-sub000/internal/dispatch"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/domain"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/service"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/storage"
)

type fakeService struct {
	jobs      map[string]*domain.Job
	submitErr error
	pingErr   error
	lastType  string
}

func newFakeService() *fakeService {
	return &fakeService{jobs: map[string]*domain.Job{
		"J1": {JobID: "J1", UserID: "u1", Category: "music", Type: "reel", Status: domain.Processing},
		"J2": {JobID: "J2", UserID: "u1", Category: "music", Type: "reel", Status: domain.Completed},
	}}
}

func (f *fakeService) Submit(_ context.Context, req *service.CreateJobRequest) (*domain.Job, bool, error) {
	if req.JobID == "" {
		return nil, false, errors.Wrap(service.ErrInvalidInput, "missing job_id")
	}
	if j, ok := f.jobs[req.JobID]; ok {
		return j, false, nil
	}
	j := &domain.Job{JobID: req.JobID, UserID: req.UserID, Type: req.Type, Status: domain.Processing}
	if f.submitErr != nil {
		j.Status = domain.Failed
		j.ErrorMessage = f.submitErr.Error()
		f.jobs[j.JobID] = j
		return j, true, f.submitErr
	}
	f.jobs[j.JobID] = j
	return j, true, nil
}

func (f *fakeService) GetJob(_ context.Context, id string) (*domain.Job, error) {
	if j, ok := f.jobs[id]; ok {
		return j, nil
	}
	return nil, storage.ErrJobNotFound
}

func (f *fakeService) ListJobs(_ context.Context, userID, category string) ([]*domain.Job, error) {
	if userID == "" {
		return nil, errors.Wrap(service.ErrInvalidInput, "missing user_id")
	}
	var out []*domain.Job
	for _, j := range f.jobs {
		if j.UserID == userID && (category == "" || j.Category == category) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeService) Reconcile(_ context.Context, id, typeName string) (domain.PollResult, error) {
	f.lastType = typeName
	j, ok := f.jobs[id]
	if !ok {
		return domain.PollResult{}, storage.ErrJobNotFound
	}
	return domain.PollResult{JobID: id, Status: j.Status, PollCount: 1, ShouldStopPolling: j.Status.Terminal()}, nil
}

func (f *fakeService) Post(_ context.Context, id string) (*domain.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, storage.ErrJobNotFound
	}
	if j.Status != domain.Completed {
		return nil, errors.Wrap(service.ErrInvalidTransition, "not completed")
	}
	j.Status = domain.Posted
	return j, nil
}

func (f *fakeService) ClearJobs(_ context.Context, userID, _ string) (int64, error) {
	if userID == "" {
		return 0, errors.Wrap(service.ErrInvalidInput, "missing user_id")
	}
	var n int64
	for id, j := range f.jobs {
		if j.UserID == userID {
			delete(f.jobs, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeService) Ping(context.Context) error { return f.pingErr }

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_Status(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"create", http.MethodPost, "/v1/jobs", `{"user_id":"u1","job_id":"J9","category":"music","type":"reel"}`, http.StatusCreated},
		{"create duplicate", http.MethodPost, "/v1/jobs", `{"user_id":"u1","job_id":"J1","category":"music","type":"reel"}`, http.StatusOK},
		{"create invalid", http.MethodPost, "/v1/jobs", `{"user_id":"u1"}`, http.StatusBadRequest},
		{"create bad json", http.MethodPost, "/v1/jobs", `{`, http.StatusBadRequest},
		{"get", http.MethodGet, "/v1/jobs/J1", "", http.StatusOK},
		{"get missing", http.MethodGet, "/v1/jobs/nope", "", http.StatusNotFound},
		{"list", http.MethodGet, "/v1/jobs?user_id=u1", "", http.StatusOK},
		{"list without user", http.MethodGet, "/v1/jobs", "", http.StatusBadRequest},
		{"reconcile", http.MethodPost, "/v1/jobs/J1/reconcile", "", http.StatusOK},
		{"reconcile missing", http.MethodPost, "/v1/jobs/nope/reconcile", "", http.StatusNotFound},
		{"post processing", http.MethodPost, "/v1/jobs/J1/post", "", http.StatusConflict},
		{"post completed", http.MethodPost, "/v1/jobs/J2/post", "", http.StatusOK},
		{"healthz", http.MethodGet, "/healthz", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(newFakeService(), nil).Routes()
			rec := do(t, h, tt.method, tt.target, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("got %d want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type %q", ct)
			}
		})
	}
}

func TestReconcile_Body(t *testing.T) {
	svc := newFakeService()
	h := NewHandler(svc, nil).Routes()

	rec := do(t, h, http.MethodPost, "/v1/jobs/J2/reconcile?type=quote", "")
	var res domain.PollResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.JobID != "J2" || res.Status != domain.Completed || !res.ShouldStopPolling {
		t.Errorf("unexpected %+v", res)
	}
	if svc.lastType != "quote" {
		t.Errorf("type override not passed, got %q", svc.lastType)
	}
}

func TestCreate_DispatchFailure(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&dispatch.ConfigError{Type: "reel", Err: domain.ErrNoExternalURL}, http.StatusUnprocessableEntity},
		{errors.New("dispatch: connection refused"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		svc := newFakeService()
		svc.submitErr = tt.err
		h := NewHandler(svc, nil).Routes()

		rec := do(t, h, http.MethodPost, "/v1/jobs", `{"user_id":"u1","job_id":"J9","category":"music","type":"reel"}`)
		if rec.Code != tt.want {
			t.Fatalf("%v: got %d want %d", tt.err, rec.Code, tt.want)
		}
		var body struct {
			Error string      `json:"error"`
			Job   *domain.Job `json:"job"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body.Job == nil || body.Job.Status != domain.Failed || body.Error == "" {
			t.Errorf("unexpected body %+v", body)
		}
	}
}

func TestClearJobs(t *testing.T) {
	svc := newFakeService()
	h := NewHandler(svc, nil).Routes()

	rec := do(t, h, http.MethodDelete, "/v1/jobs?user_id=u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	var body map[string]int64
	json.NewDecoder(rec.Body).Decode(&body)
	if body["deleted"] != 2 {
		t.Errorf("deleted=%d", body["deleted"])
	}

	if rec := do(t, h, http.MethodDelete, "/v1/jobs", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("clear without user: %d", rec.Code)
	}
}

func TestHealthz_StoreDown(t *testing.T) {
	svc := newFakeService()
	svc.pingErr = errors.New("connection refused")
	rec := do(t, NewHandler(svc, nil).Routes(), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d", rec.Code)
	}
}

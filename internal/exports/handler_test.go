package exports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/queue"
)

type memStore map[uuid.UUID]*models.ReportExport

func (m memStore) Create(_ context.Context, e *models.ReportExport) error {
	cp := *e
	m[e.ID] = &cp
	return nil
}

func (m memStore) Get(_ context.Context, id uuid.UUID) (*models.ReportExport, error) {
	e, ok := m[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

type fakeQueue struct {
	jobs []queue.ExportPayload
	err  error
}

func (q *fakeQueue) EnqueueExport(_ context.Context, p queue.ExportPayload) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, p)
	return nil
}

type fakePresigner struct{}

func (fakePresigner) GeneratePresignedDownloadURL(_ context.Context, bucket, key, filename string, _ time.Duration) (string, error) {
	return "https://" + bucket + "/" + key + "?filename=" + filename, nil
}
func (fakePresigner) ExportsBucket() string { return "exports" }
func (fakePresigner) PresignExpire() time.Duration { return time.Minute }

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(auth.ContextActor, auth.Actor{UserID: uuid.New(), Role: models.RoleAdmin})
		c.Next()
	})
	r.POST("/finance/reports/exports", h.Create)
	r.GET("/finance/reports/exports/:id", h.Get)
	return r
}

func send(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateAndGet(t *testing.T) {
	store := memStore{}
	q := &fakeQueue{}
	r := newRouter(NewHandler(store, q, fakePresigner{}, nil))

	w := send(r, http.MethodPost, "/finance/reports/exports", `{"type":"pie-chart"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad kind: want 400, got %d", w.Code)
	}

	w = send(r, http.MethodPost, "/finance/reports/exports", `{"type":"over-budget"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var env struct {
		Data ExportResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	id := env.Data.ID
	if len(q.jobs) != 1 || q.jobs[0].ExportID != id || q.jobs[0].Kind != "over-budget" {
		t.Fatalf("jobs = %+v", q.jobs)
	}

	w = send(r, http.MethodGet, "/finance/reports/exports/"+id.String(), "")
	if w.Code != http.StatusOK || strings.Contains(w.Body.String(), "download_url") {
		t.Fatalf("queued export: %d %s", w.Code, w.Body.String())
	}

	store[id].Status = models.ExportStatusCompleted
	store[id].S3Key = "exports/over-budget/" + id.String() + ".csv"
	w = send(r, http.MethodGet, "/finance/reports/exports/"+id.String(), "")
	if !strings.Contains(w.Body.String(), `"download_url":"https://exports/exports/over-budget/`) ||
		!strings.Contains(w.Body.String(), "over-budget-report-") {
		t.Fatalf("completed export: %s", w.Body.String())
	}

	w = send(r, http.MethodGet, "/finance/reports/exports/"+uuid.New().String(), "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing export: want 404, got %d", w.Code)
	}
}

func TestCreate_Unavailable(t *testing.T) {
	w := send(newRouter(NewHandler(memStore{}, nil, nil, nil)), http.MethodPost, "/finance/reports/exports", `{}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("no queue: want 503, got %d", w.Code)
	}
	q := &fakeQueue{err: errors.New("redis down")}
	w = send(newRouter(NewHandler(memStore{}, q, fakePresigner{}, nil)), http.MethodPost, "/finance/reports/exports", `{}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("enqueue error: want 503, got %d", w.Code)
	}
}

package worker

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/eventdesk/backend/internal/finance"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/queue"
)

type memExports struct {
	mu      sync.Mutex
	exports map[uuid.UUID]*models.ReportExport
}

func (m *memExports) Get(_ context.Context, id uuid.UUID) (*models.ReportExport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exports[id]
	if !ok {
		return nil, errors.New("export not found")
	}
	cp := *e
	return &cp, nil
}

func (m *memExports) MarkCompleted(_ context.Context, id uuid.UUID, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.exports[id]
	e.Status, e.S3Key, e.CompletedAt = models.ExportStatusCompleted, key, &at
	return nil
}

func (m *memExports) MarkFailed(_ context.Context, id uuid.UUID, msg string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.exports[id]
	e.Status, e.ErrorMessage, e.CompletedAt = models.ExportStatusFailed, msg, &at
	return nil
}

type renderer struct{ err error }

func (r renderer) ExportCSV(_ context.Context, kind finance.ReportKind, w io.Writer) error {
	if r.err != nil {
		return r.err
	}
	_, err := io.WriteString(w, "kind\n"+string(kind)+"\n")
	return err
}

type memBucket struct {
	objects map[string]string
}

func (b *memBucket) Upload(_ context.Context, bucket, key, _ string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	b.objects[bucket+"/"+key] = string(data)
	return "https://" + bucket + "/" + key, nil
}

func (b *memBucket) ExportsBucket() string { return "exports" }

type memQueue struct {
	mu      sync.Mutex
	pending []*queue.Job
	dlq     []*queue.Job
}

func (q *memQueue) Dequeue(ctx context.Context, _ time.Duration) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	return job, nil
}

func (q *memQueue) Retry(_ context.Context, job *queue.Job) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempt++
	if job.Attempt >= queue.MaxRetries {
		q.dlq = append(q.dlq, job)
		return true, nil
	}
	q.pending = append(q.pending, job)
	return false, nil
}

func (q *memQueue) idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0
}

func newExport(kind string) (*memExports, uuid.UUID) {
	id := uuid.New()
	return &memExports{exports: map[uuid.UUID]*models.ReportExport{
		id: {ID: id, Kind: kind, Status: models.ExportStatusQueued, CreatedAt: time.Now().UTC()},
	}}, id
}

func exportJob(t *testing.T, id uuid.UUID, kind string) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(queue.JobTypeReportExport, queue.ExportPayload{ExportID: id, Kind: kind})
	if err != nil {
		t.Fatal(err)
	}
	return job
}

func TestProcess_UploadsAndCompletes(t *testing.T) {
	store, id := newExport("category-wise")
	bucket := &memBucket{objects: map[string]string{}}
	p := NewExportProcessor(store, renderer{}, bucket, &memQueue{}, nil)

	if err := p.Process(context.Background(), exportJob(t, id, "category-wise")); err != nil {
		t.Fatal(err)
	}
	e, _ := store.Get(context.Background(), id)
	wantKey := "exports/category-wise/" + id.String() + ".csv"
	if e.Status != models.ExportStatusCompleted || e.S3Key != wantKey {
		t.Fatalf("export = %+v", e)
	}
	if got := bucket.objects["exports/"+wantKey]; !strings.Contains(got, "category-wise") {
		t.Fatalf("object = %q", got)
	}

	// A redelivered job for a finished export is a no-op.
	delete(bucket.objects, "exports/"+wantKey)
	if err := p.Process(context.Background(), exportJob(t, id, "category-wise")); err != nil {
		t.Fatal(err)
	}
	if len(bucket.objects) != 0 {
		t.Fatal("completed export uploaded again")
	}
}

func TestProcess_RejectsUnknownJob(t *testing.T) {
	p := NewExportProcessor(&memExports{}, renderer{}, &memBucket{}, &memQueue{}, nil)
	if err := p.Process(context.Background(), &queue.Job{Type: "recording_upload"}); err == nil {
		t.Fatal("expected unknown job type error")
	}
}

func TestRun_DeadLettersAfterRetries(t *testing.T) {
	store, id := newExport("over-budget")
	q := &memQueue{pending: []*queue.Job{exportJob(t, id, "over-budget")}}
	p := NewExportProcessor(store, renderer{err: errors.New("db unavailable")}, &memBucket{objects: map[string]string{}}, q, nil)
	p.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for {
		q.mu.Lock()
		dead := len(q.dlq)
		q.mu.Unlock()
		if dead == 1 && q.idle() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never dead-lettered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	e, _ := store.Get(context.Background(), id)
	if e.Status != models.ExportStatusFailed || !strings.Contains(e.ErrorMessage, "db unavailable") {
		t.Fatalf("export = %+v", e)
	}
	if q.dlq[0].Attempt != queue.MaxRetries {
		t.Fatalf("attempts = %d", q.dlq[0].Attempt)
	}
}

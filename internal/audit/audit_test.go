package audit

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventdesk/backend/internal/models"
)

func TestValidateReason(t *testing.T) {
	cases := []struct {
		in   string
		ok   bool
		want string
	}{
		{"bad data", false, ""},
		{"bad data!!", true, "bad data!!"},
		{"   bad data!!   ", true, "bad data!!"},
		{"          ", false, ""},
		{"", false, ""},
		{"ñandú ñandú", true, "ñandú ñandú"},
		{"ñandúñandú", true, "ñandúñandú"},
		{"ñandúñand", false, ""},
	}
	for _, tc := range cases {
		got, err := ValidateReason(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("ValidateReason(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("ValidateReason(%q) = %q, want %q", tc.in, got, tc.want)
			}
			continue
		}
		if !errors.Is(err, ErrReasonTooShort) {
			t.Fatalf("ValidateReason(%q) err = %v, want ErrReasonTooShort", tc.in, err)
		}
	}
}

func TestSnapshot(t *testing.T) {
	if Snapshot(nil) != nil {
		t.Fatal("nil value should produce nil snapshot")
	}
	var m map[string]string
	if Snapshot(m) != nil {
		t.Fatal("nil map should produce nil snapshot")
	}
	got := string(Snapshot(map[string]string{"status": "VALID"}))
	if got != `{"status":"VALID"}` {
		t.Fatalf("snapshot = %s", got)
	}
}

type memInserter struct {
	entries []*models.AuditLog
	err     error
}

func (m *memInserter) Insert(_ context.Context, e *models.AuditLog) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func TestRecorderRecord(t *testing.T) {
	repo := &memInserter{}
	r := NewRecorder(repo, nil)
	entry := &models.AuditLog{EntityType: models.EntityCertificate, EntityID: uuid.New(), Severity: models.SeverityCritical, Reason: "issued to wrong person"}
	if err := r.Record(context.Background(), entry); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(repo.entries))
	}

	repo.err = errors.New("db down")
	if err := r.Record(context.Background(), entry); err == nil {
		t.Fatal("expected insert error to propagate")
	}
}

func TestParseFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	eventID := uuid.New()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/audit-logs?entity_type=BUDGET&event_id="+eventID.String()+"&severity=CRITICAL&limit=5", nil)
	f, err := parseFilter(c)
	if err != nil {
		t.Fatalf("parseFilter: %v", err)
	}
	if f.EntityType != "BUDGET" || f.EventID == nil || *f.EventID != eventID || f.Severity != models.SeverityCritical || f.Limit != 5 {
		t.Fatalf("unexpected filter %+v", f)
	}

	for _, q := range []string{"?severity=LOUD", "?event_id=nope", "?limit=-1"} {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest("GET", "/audit-logs"+q, nil)
		if _, err := parseFilter(c); err == nil {
			t.Fatalf("parseFilter(%s) expected error", q)
		}
	}
}

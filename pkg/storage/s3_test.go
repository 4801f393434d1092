package storage

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestValidateReceiptFileType(t *testing.T) {
	cases := []struct {
		contentType, filename string
		want                  bool
	}{
		{"image/jpeg", "photo", true},
		{"", "bill.PDF", true},
		{"application/octet-stream", "scan.heic", true},
		{"text/html", "index.html", false},
		{"", "archive.zip", false},
	}
	for _, tc := range cases {
		if got := ValidateReceiptFileType(tc.contentType, tc.filename); got != tc.want {
			t.Fatalf("ValidateReceiptFileType(%q, %q) = %v", tc.contentType, tc.filename, got)
		}
	}
}

func TestKeys(t *testing.T) {
	eventID, userID := uuid.New(), uuid.New()
	a := ReceiptKey(eventID, userID, "../../etc/receipt.JPG")
	b := ReceiptKey(eventID, userID, "receipt.jpg")
	prefix := "receipts/" + eventID.String() + "/" + userID.String() + "/"
	if !strings.HasPrefix(a, prefix) || !strings.HasSuffix(a, ".jpg") || strings.Contains(a, "..") {
		t.Fatalf("receipt key = %s", a)
	}
	if a == b {
		t.Fatal("receipt keys should be unique per upload")
	}
	if k := ReceiptKey(eventID, userID, "notes.exe"); strings.HasSuffix(k, ".exe") {
		t.Fatalf("unexpected extension kept: %s", k)
	}

	id := uuid.New()
	if got := ExportKey("over-budget", id); got != "exports/over-budget/"+id.String()+".csv" {
		t.Fatalf("export key = %s", got)
	}
}

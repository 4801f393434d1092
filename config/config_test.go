package config

import "testing"

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "eventdesk", SSLMode: "disable"}
	if got := c.DSN(); got != "postgres://u:p@db:5432/eventdesk?sslmode=disable" {
		t.Fatalf("DSN = %s", got)
	}
	c.URL = "postgres://elsewhere/x"
	if got := c.DSN(); got != c.URL {
		t.Fatalf("DSN with URL = %s", got)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("PERMISSION_CACHE_SECONDS", "60")
	t.Setenv("EXPORT_WORKER_IN_PROCESS", "false")
	t.Setenv("AWS_S3_RECEIPTS_BUCKET", "r")
	t.Setenv("REDIS_DB", "not-a-number")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Finance.PermissionCacheSeconds != 60 || cfg.Finance.ExportWorkerInProcess {
		t.Fatalf("finance = %+v", cfg.Finance)
	}
	if cfg.AWS.ReceiptsBucket != "r" || cfg.AWS.ExportsBucket != "eventdesk-exports" {
		t.Fatalf("aws = %+v", cfg.AWS)
	}
	if cfg.Redis.DB != 0 {
		t.Fatalf("invalid REDIS_DB should fall back, got %d", cfg.Redis.DB)
	}
}

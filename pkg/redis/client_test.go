package redis

import (
	"context"
	"testing"
	"time"
)

func TestNewClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := NewClient(ctx, Options{Addr: "127.0.0.1:1"}, nil)
	if err == nil {
		c.Close()
		t.Fatal("expected an error for a closed port")
	}
}

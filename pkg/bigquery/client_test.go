package bigquery

import (
	"context"
	"net/http"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestTableFQN(t *testing.T) {
	var c *Client
	if got := c.TableFQN("admob_network_daily"); got != "" {
		t.Fatalf("nil client should return empty fqn, got %q", got)
	}
}

func TestIsNotFound(t *testing.T) {
	if isNotFound(nil) {
		t.Fatal("nil error should not be not-found")
	}
	if !isNotFound(&googleapi.Error{Code: http.StatusNotFound}) {
		t.Fatal("404 should be not-found")
	}
	if isNotFound(&googleapi.Error{Code: http.StatusForbidden}) {
		t.Fatal("403 should not be not-found")
	}
}

func TestUninitializedClientRejectsCalls(t *testing.T) {
	ctx := context.Background()
	var c *Client
	if err := c.Ping(ctx); err == nil {
		t.Fatal("expected ping error for nil client")
	}
	if _, err := c.LoadFromGCS(ctx, "table", LoadJobSpec{URI: "gs://bucket/object"}); err == nil {
		t.Fatal("expected load error for nil client")
	}
	if err := c.Exec(ctx, "DELETE FROM t WHERE true", nil); err == nil {
		t.Fatal("expected exec error for nil client")
	}
	if _, err := c.Query(ctx, "SELECT 1", nil); err == nil {
		t.Fatal("expected query error for nil client")
	}
}

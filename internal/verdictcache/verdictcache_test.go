package verdictcache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ptnguyen/devsentry/internal/model"
)

// TestKey_DeterministicAndDistinct verifies the digest-to-key mapping is
// stable for equal digests and differs for different ones.
func TestKey_DeterministicAndDistinct(t *testing.T) {
	a := Key("digest one")
	if a != Key("digest one") {
		t.Error("Key should be deterministic for the same digest")
	}
	if a == Key("digest two") {
		t.Error("different digests should map to different keys")
	}
	if !strings.HasPrefix(a, keyPrefix) {
		t.Errorf("key %q should carry the namespace prefix", a)
	}
}

// TestGetPut_DownRedisDegradesToMiss verifies that with no Redis reachable
// the cache behaves as empty and Put never fails the caller.
func TestGetPut_DownRedisDegradesToMiss(t *testing.T) {
	c := New(Config{Addr: "127.0.0.1:1", TTL: time.Minute}, nil)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if _, ok := c.Get(ctx, "digest"); ok {
		t.Error("Get against a down Redis should be a miss")
	}
	// Must not panic or block past the context.
	c.Put(ctx, "digest", model.ClassificationResult{RawResponse: "ok"})
}

// TestPut_SkipsErredResults verifies erred verdicts are never written, so an
// outage cannot be replayed into later sessions.
func TestPut_SkipsErredResults(t *testing.T) {
	c := New(Config{Addr: "127.0.0.1:1", TTL: time.Minute}, nil)
	defer c.Close()

	// With a down Redis a write attempt would just log; the erred guard must
	// return before any connection is tried, so a cancelled context is fine.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Put(ctx, "digest", model.ClassificationResult{Erred: true, ErrorDetail: "timeout"})
}

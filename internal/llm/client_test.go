package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func chatBody(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func testClient(apiURL string, timeout time.Duration, keywords []string) *Client {
	return NewClient(Config{
		APIURL:           apiURL,
		APIKey:           "sk-test",
		Model:            "test-model",
		Temperature:      0.5,
		Timeout:          timeout,
		AbnormalKeywords: keywords,
	}, nil)
}

// TestClassify_Success verifies the happy path: the digest goes out in a
// chat completions payload and the response text is keyword-classified.
func TestClassify_Success(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q, want Bearer sk-test", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatBody("Pattern looks abnormal due to repeated disconnect")))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5*time.Second, []string{"disconnect", "abnormal"})
	res := c.Classify(context.Background(), "digest text here")

	if res.Erred {
		t.Fatalf("Erred = true, detail: %s", res.ErrorDetail)
	}
	if !res.IsAbnormal {
		t.Error("IsAbnormal should be true")
	}
	if len(res.MatchedKeywords) != 2 || res.MatchedKeywords[0] != "disconnect" || res.MatchedKeywords[1] != "abnormal" {
		t.Errorf("MatchedKeywords = %v, want configured order [disconnect abnormal]", res.MatchedKeywords)
	}
	if res.RawResponse == "" {
		t.Error("RawResponse should carry the model's text")
	}

	if gotReq.Model != "test-model" {
		t.Errorf("request model = %q, want test-model", gotReq.Model)
	}
	if gotReq.Stream {
		t.Error("request must not ask for streaming")
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Fatalf("messages = %+v, want system then user", gotReq.Messages)
	}
	if !strings.Contains(gotReq.Messages[1].Content, "digest text here") {
		t.Error("user message should embed the digest text")
	}
}

// TestClassify_NormalResponse verifies a keyword-free response yields a
// non-abnormal, non-erred verdict.
func TestClassify_NormalResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatBody("Everything is within the usual operating range.")))
	}))
	defer srv.Close()

	res := testClient(srv.URL, 5*time.Second, []string{"abnormal"}).Classify(context.Background(), "digest")
	if res.Erred || res.IsAbnormal {
		t.Errorf("got Erred=%v IsAbnormal=%v, want a clean normal verdict", res.Erred, res.IsAbnormal)
	}
	if len(res.MatchedKeywords) != 0 {
		t.Errorf("MatchedKeywords = %v, want none", res.MatchedKeywords)
	}
}

// TestClassify_Timeout covers scenario C: a call exceeding the configured
// timeout yields Erred=true, IsAbnormal=false, and exactly one attempt.
func TestClassify_Timeout(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(chatBody("too late")))
	}))
	defer srv.Close()

	res := testClient(srv.URL, 30*time.Millisecond, []string{"abnormal"}).Classify(context.Background(), "digest")
	if !res.Erred {
		t.Fatal("Erred should be true on timeout")
	}
	if res.IsAbnormal {
		t.Error("a timed-out call must never be classified abnormal")
	}
	if res.ErrorDetail == "" {
		t.Error("ErrorDetail should be populated")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server saw %d calls, want 1 (no automatic retries)", n)
	}
}

// TestClassify_CallerCancellation verifies the call is cancellable by the
// caller's own context and still returns a complete erred result.
func TestClassify_CallerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(chatBody("too late")))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := testClient(srv.URL, 5*time.Second, nil).Classify(ctx, "digest")
	if !res.Erred || res.IsAbnormal {
		t.Errorf("cancelled call: got Erred=%v IsAbnormal=%v, want erred non-abnormal", res.Erred, res.IsAbnormal)
	}
}

// TestClassify_BadResponses verifies malformed and empty bodies are treated
// like a network failure.
func TestClassify_BadResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"http error status", `{"error":"rate limited"}`, http.StatusTooManyRequests},
		{"not json", "<html>gateway error</html>", http.StatusOK},
		{"empty body", "", http.StatusOK},
		{"no choices", `{"choices":[]}`, http.StatusOK},
		{"empty content", chatBody("   "), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			res := testClient(srv.URL, 5*time.Second, []string{"abnormal"}).Classify(context.Background(), "digest")
			if !res.Erred {
				t.Error("Erred should be true")
			}
			if res.IsAbnormal {
				t.Error("IsAbnormal must stay false on any failure")
			}
			if res.ErrorDetail == "" {
				t.Error("ErrorDetail should be populated")
			}
		})
	}
}

// TestClassify_UnreachableEndpoint verifies connection failures degrade to an
// erred result rather than an error or panic.
func TestClassify_UnreachableEndpoint(t *testing.T) {
	res := testClient("http://127.0.0.1:1/nope", time.Second, nil).Classify(context.Background(), "digest")
	if !res.Erred || res.IsAbnormal {
		t.Errorf("got Erred=%v IsAbnormal=%v, want erred non-abnormal", res.Erred, res.IsAbnormal)
	}
}

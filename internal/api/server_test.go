package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samcharles93/tokwrap/internal/prompt"
	"github.com/samcharles93/tokwrap/internal/tokenizer"
	"github.com/samcharles93/tokwrap/internal/tokenizer/spmtest"
)

func newTestTokenizer(t *testing.T) *tokenizer.SentencePiece {
	t.Helper()
	tok, err := tokenizer.LoadBytes(spmtest.Model())
	if err != nil {
		t.Fatalf("load tokenizer: %v", err)
	}
	return tok
}

func newTestEcho(t *testing.T, cfg Config) *echo.Echo {
	t.Helper()
	if cfg.Tokenizer == nil {
		cfg.Tokenizer = newTestTokenizer(t)
	}
	server := NewServer(cfg)
	e := echo.New()
	server.Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody[struct {
		Error ErrorBody `json:"error"`
	}](t, rec)
	if body.Error.Message == "" {
		t.Fatalf("expected error message in %s", rec.Body.String())
	}
	return body.Error.Type
}

func TestTokenizeDetokenizeRoundTrip(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, Config{})
	rec := doJSON(t, e, http.MethodPost, "/v1/tokenize", `{"text":"Hello\nworld","pieces":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("tokenize status: got %d body=%s", rec.Code, rec.Body.String())
	}
	tok := decodeBody[TokenizeResponse](t, rec)
	if !strings.HasPrefix(tok.ID, "tok_") {
		t.Fatalf("unexpected id %q", tok.ID)
	}
	if tok.Count != len(tok.IDs) || len(tok.Pieces) != len(tok.IDs) {
		t.Fatalf("count mismatch: %+v", tok)
	}
	if tok.Pieces[0] != "Hello" {
		t.Fatalf("expected merged Hello piece, got %v", tok.Pieces)
	}

	body, err := json.Marshal(DetokenizeRequest{IDs: tok.IDs})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rec = doJSON(t, e, http.MethodPost, "/v1/detokenize", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("detokenize status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[DetokenizeResponse](t, rec).Text; got != "Hello\nworld" {
		t.Fatalf("round trip: got %q", got)
	}
}

func TestDetokenizeRejectsUnknownIDs(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, Config{})
	rec := doJSON(t, e, http.MethodPost, "/v1/detokenize", `{"ids":[2,-2,9999]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if typ := errorType(t, rec); typ != "invalid_request_error" {
		t.Fatalf("error type: %q", typ)
	}
}

func TestMalformedBody(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, Config{})
	for _, path := range []string{"/v1/tokenize", "/v1/detokenize", "/v1/prompt"} {
		rec := doJSON(t, e, http.MethodPost, path, `{"text":`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
	}
}

func TestPromptInstruction(t *testing.T) {
	t.Parallel()

	tok := newTestTokenizer(t)
	e := newTestEcho(t, Config{Tokenizer: tok})
	rec := doJSON(t, e, http.MethodPost, "/v1/prompt", `{"prompt":"Hello","wrapping":"it"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[PromptResponse](t, rec)

	want, err := prompt.WrapAndTokenize(tok, prompt.Format{Wrapping: prompt.WrappingInstruction, Family: prompt.Gemma()}, 0, "Hello")
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if !reflect.DeepEqual(resp.IDs, want) {
		t.Fatalf("ids: got %v want %v", resp.IDs, want)
	}
	if resp.IDs[0] != spmtest.BOSID || resp.IDs[1] != spmtest.StartOfTurnID {
		t.Fatalf("expected BOS then start of turn, got %v", resp.IDs[:2])
	}
	if resp.Wrapping != "it" || resp.Family != "gemma" || resp.NumImages != 0 {
		t.Fatalf("unexpected metadata: %+v", resp)
	}
}

func TestPromptDefaultsFromConfig(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, Config{DefaultWrapping: prompt.WrappingPaliGemma})
	rec := doJSON(t, e, http.MethodPost, "/v1/prompt", `{"prompt":"Hello","position":4}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[PromptResponse](t, rec)
	if resp.Wrapping != "paligemma" {
		t.Fatalf("wrapping: %q", resp.Wrapping)
	}
	if resp.IDs[0] == spmtest.BOSID {
		t.Fatalf("continuation must not start with BOS: %v", resp.IDs)
	}
	if resp.IDs[len(resp.IDs)-1] != spmtest.NewlineID {
		t.Fatalf("paligemma prompt must end with separator: %v", resp.IDs)
	}
}

func TestPromptVisionLanguage(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, Config{})
	rec := doJSON(t, e, http.MethodPost, "/v1/prompt",
		`{"prompt":"Hello","wrapping":"vlm","image_batch_size":256,"max_image_batch_size":100}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[PromptResponse](t, rec)
	if resp.NumImages != 3 || len(resp.ImageSpans) != 3 {
		t.Fatalf("expected 3 image blocks: %+v", resp.ImageSpans)
	}
	if resp.IDs[0] != spmtest.BOSID {
		t.Fatalf("fresh context must start with BOS, got %v", resp.IDs[:4])
	}
	bos := 0
	for _, id := range resp.IDs {
		if id == spmtest.BOSID {
			bos++
		}
	}
	if bos != 1 {
		t.Fatalf("expected exactly one BOS, got %d", bos)
	}
	sentinels := 0
	for _, id := range resp.IDs {
		if id == resp.ImageTokenID {
			sentinels++
		}
	}
	if sentinels != 768 {
		t.Fatalf("sentinel count: got %d want 768", sentinels)
	}
	for _, span := range resp.ImageSpans {
		if span.Len != 256 {
			t.Fatalf("span length: %+v", span)
		}
	}
}

func TestPromptRejects(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, Config{})
	cases := map[string]string{
		"unknown wrapping":   `{"prompt":"x","wrapping":"chatml"}`,
		"unknown family":     `{"prompt":"x","family":"llama"}`,
		"negative position":  `{"prompt":"x","position":-1}`,
		"images without vlm": `{"prompt":"x","wrapping":"it","image_batch_size":4}`,
		"negative images":    `{"prompt":"x","wrapping":"vlm","image_batch_size":-1}`,
		"negative images it": `{"prompt":"x","wrapping":"it","image_batch_size":-4}`,
	}
	for name, body := range cases {
		rec := doJSON(t, e, http.MethodPost, "/v1/prompt", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d body=%s", name, rec.Code, rec.Body.String())
		}
		if typ := errorType(t, rec); typ != "invalid_request_error" {
			t.Fatalf("%s: error type %q", name, typ)
		}
	}
}

func TestPromptUsesRegisteredFamily(t *testing.T) {
	t.Parallel()

	families := prompt.NewRegistry()
	if err := families.LoadFamilies([]byte("families:\n  - name: custom\n    bos_id: 1\n")); err != nil {
		t.Fatalf("load families: %v", err)
	}
	e := newTestEcho(t, Config{Families: families, DefaultFamily: "custom"})
	rec := doJSON(t, e, http.MethodPost, "/v1/prompt", `{"prompt":"Hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[PromptResponse](t, rec)
	if resp.Family != "custom" || resp.IDs[0] != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/families", "")
	list := decodeBody[struct {
		Data []string `json:"data"`
	}](t, rec)
	if !reflect.DeepEqual(list.Data, []string{"custom", "gemma"}) {
		t.Fatalf("families: %v", list.Data)
	}
}

type failingTokenizer struct{}

func (failingTokenizer) Encode(text string) ([]int, error) {
	return nil, &tokenizer.EncodeError{Text: text, Err: tokenizer.ErrNotLoaded}
}

func (failingTokenizer) EncodePieces(text string) ([]string, error) {
	return nil, &tokenizer.EncodeError{Text: text, Err: tokenizer.ErrNotLoaded}
}

func (failingTokenizer) Decode(ids []int) (string, error) { return "", nil }

func TestTokenizerFailureIsServerError(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, Config{Tokenizer: failingTokenizer{}})
	for _, path := range []string{"/v1/tokenize", "/v1/prompt"} {
		rec := doJSON(t, e, http.MethodPost, path, `{"text":"x","prompt":"x"}`)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
		if typ := errorType(t, rec); typ != "tokenizer_error" {
			t.Fatalf("%s: error type %q", path, typ)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics("tokwrap")
	e := newTestEcho(t, Config{Metrics: metrics})

	doJSON(t, e, http.MethodPost, "/v1/tokenize", `{"text":"Hello"}`)
	doJSON(t, e, http.MethodPost, "/v1/detokenize", `{"ids":[-1]}`)
	doJSON(t, e, http.MethodPost, "/v1/prompt",
		`{"prompt":"Hello","wrapping":"vlm","image_batch_size":4,"max_image_batch_size":2}`)

	if got := testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("tokenize", "200")); got != 1 {
		t.Fatalf("tokenize 200 count: %v", got)
	}
	if got := testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("detokenize", "400")); got != 1 {
		t.Fatalf("detokenize 400 count: %v", got)
	}
	if got := testutil.ToFloat64(metrics.imageSlots); got != 8 {
		t.Fatalf("image slots: got %v want 8", got)
	}

	rec := doJSON(t, e, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `tokwrap_requests_total{endpoint="prompt",status="200"} 1`) {
		t.Fatalf("metrics output missing prompt counter:\n%s", rec.Body.String())
	}
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	e := echo.New()
	e.Use(RateLimiter(ctx, 0.001, 2))
	NewServer(Config{Tokenizer: newTestTokenizer(t)}).Register(e)

	for i := 0; i < 2; i++ {
		if rec := doJSON(t, e, http.MethodPost, "/v1/tokenize", `{"text":"a"}`); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
	rec := doJSON(t, e, http.MethodPost, "/v1/tokenize", `{"text":"a"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if typ := errorType(t, rec); typ != "rate_limit_exceeded" {
		t.Fatalf("error type: %q", typ)
	}

	// Forwarding headers do not give the same peer a fresh bucket.
	spoofed := map[string]string{
		echo.HeaderXForwardedFor: "203.0.113.1",
		echo.HeaderXRealIP:       "203.0.113.2",
	}
	for hdr, ip := range spoofed {
		req := httptest.NewRequest(http.MethodPost, "/v1/tokenize", strings.NewReader(`{"text":"a"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(hdr, ip)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("%s: expected 429, got %d", hdr, rec.Code)
		}
	}

	// A different peer address has its own bucket.
	req := httptest.NewRequest(http.MethodPost, "/v1/tokenize", strings.NewReader(`{"text":"a"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.RemoteAddr = "198.51.100.7:4321"
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other peer: expected 200, got %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"192.0.2.1:1234":  "192.0.2.1",
		"[2001:db8::1]:80": "2001:db8::1",
		"unix-socket":     "unix-socket",
	}
	for addr, want := range cases {
		if got := clientIP(addr); got != want {
			t.Errorf("clientIP(%q) = %q, want %q", addr, got, want)
		}
	}
}

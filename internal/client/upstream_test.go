package client

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"

	"cors-relay-go/internal/config"
	"cors-relay-go/internal/metrics"
	"cors-relay-go/internal/model"
)

func newTestClient(t *testing.T, headerTimeout int, m *metrics.Metrics) *UpstreamClient {
	t.Helper()
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			HeaderTimeoutSeconds: headerTimeout,
			IdleConnections:      10,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewUpstreamClient(cfg, logger, m)
}

func TestUpstreamClient_DoStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Custom") != "yes" {
			t.Errorf("X-Custom = %q, want %q", r.Header.Get("X-Custom"), "yes")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, 10, nil)

	out := &model.OutboundRequest{
		URL:    srv.URL + "/test",
		Method: http.MethodGet,
		Header: http.Header{"X-Custom": {"yes"}},
	}
	resp, err := c.DoStream(context.Background(), out)
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if resp.ContentType != "application/json" {
		t.Errorf("ContentType = %q, want %q", resp.ContentType, "application/json")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != `{"status":"ok"}` {
		t.Errorf("body = %q, want %q", string(body), `{"status":"ok"}`)
	}
}

func TestUpstreamClient_DoStream_SendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "payload" {
			t.Errorf("body = %q, want %q", string(body), "payload")
		}
		if r.ContentLength != int64(len("payload")) {
			t.Errorf("ContentLength = %d, want %d", r.ContentLength, len("payload"))
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, 10, nil)

	resp, err := c.DoStream(context.Background(), &model.OutboundRequest{
		URL:    srv.URL,
		Method: http.MethodPost,
		Body:   []byte("payload"),
	})
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
}

func TestUpstreamClient_DoStream_Error(t *testing.T) {
	c := newTestClient(t, 1, nil)

	_, err := c.DoStream(context.Background(), &model.OutboundRequest{
		URL:    "http://127.0.0.1:1/nonexistent",
		Method: http.MethodGet,
	})
	if err == nil {
		t.Fatal("DoStream() expected error for unreachable host, got nil")
	}
}

func TestUpstreamClient_DoStream_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, 30, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.DoStream(ctx, &model.OutboundRequest{URL: srv.URL + "/slow", Method: http.MethodGet})
	if err == nil {
		t.Fatal("DoStream() expected error for canceled context, got nil")
	}
}

func TestUpstreamClient_DoStream_RecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	m := metrics.New()
	c := newTestClient(t, 10, m)

	resp, err := c.DoStream(context.Background(), &model.OutboundRequest{URL: srv.URL, Method: http.MethodGet})
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	_ = resp.Body.Close()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != "cors_relay_upstream_responses_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "status_code" && lp.GetValue() == "418" {
					return
				}
			}
		}
	}
	t.Error("expected cors_relay_upstream_responses_total with status_code=418")
}

func newZstdWriter(w io.Writer) io.WriteCloser {
	zw, _ := zstd.NewWriter(w)
	return zw
}

func TestUpstreamClient_DecodesCompressedBodies(t *testing.T) {
	const want = "hello, relayed world"

	encoders := map[string]func(io.Writer) io.WriteCloser{
		"gzip":    func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) },
		"deflate": func(w io.Writer) io.WriteCloser { return zlib.NewWriter(w) },
		"br":      func(w io.Writer) io.WriteCloser { return brotli.NewWriter(w) },
		"zstd":    newZstdWriter,
	}

	for name, enc := range encoders {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			zw := enc(&buf)
			_, _ = zw.Write([]byte(want))
			_ = zw.Close()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Encoding", name)
				w.Header().Set("Content-Type", "text/plain")
				_, _ = w.Write(buf.Bytes())
			}))
			defer srv.Close()

			c := newTestClient(t, 10, nil)
			resp, err := c.DoStream(context.Background(), &model.OutboundRequest{
				URL:    srv.URL,
				Method: http.MethodGet,
				// An explicit Accept-Encoding disables the transport's own gzip handling.
				Header: http.Header{"Accept-Encoding": {name}},
			})
			if err != nil {
				t.Fatalf("DoStream() error = %v", err)
			}
			defer func() { _ = resp.Body.Close() }()

			got, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if string(got) != want {
				t.Errorf("body = %q, want %q", string(got), want)
			}
		})
	}
}

func TestDecodeBody_EmptyGzip(t *testing.T) {
	body, err := decodeBody("gzip", io.NopCloser(bytes.NewReader(nil)))
	if err != nil {
		t.Fatalf("decodeBody() error = %v", err)
	}
	if got, _ := io.ReadAll(body); len(got) != 0 {
		t.Errorf("body = %q, want empty", got)
	}
}

func TestUpstreamClient_DecodesZstdForBrowserAcceptEncoding(t *testing.T) {
	const want = "zstd relayed body"

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	_, _ = zw.Write([]byte(want))
	_ = zw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept-Encoding"); !strings.Contains(got, "zstd") {
			t.Errorf("Accept-Encoding = %q, want zstd offered", got)
		}
		w.Header().Set("Content-Encoding", "zstd")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := newTestClient(t, 10, nil)
	resp, err := c.DoStream(context.Background(), &model.OutboundRequest{
		URL:    srv.URL,
		Method: http.MethodGet,
		Header: http.Header{"Accept-Encoding": {"gzip, deflate, br, zstd"}},
	})
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != want {
		t.Errorf("body = %q, want %q", string(got), want)
	}
}

func TestUpstreamClient_RestrictsAcceptEncoding(t *testing.T) {
	tests := []struct {
		name    string
		inbound string
		want    string
	}{
		{"unsupported dropped", "gzip, compress, zstd;q=0.5, sdch", "gzip, zstd;q=0.5"},
		{"identity kept", "identity", "identity"},
		{"case insensitive", "GZIP, Br", "GZIP, Br"},
		// Nothing usable is left, so the transport offers gzip itself.
		{"none supported", "compress, sdch", "gzip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = r.Header.Get("Accept-Encoding")
			}))
			defer srv.Close()

			out := &model.OutboundRequest{
				URL:    srv.URL,
				Method: http.MethodGet,
				Header: http.Header{"Accept-Encoding": {tt.inbound}},
			}
			c := newTestClient(t, 10, nil)
			resp, err := c.DoStream(context.Background(), out)
			if err != nil {
				t.Fatalf("DoStream() error = %v", err)
			}
			_ = resp.Body.Close()

			if got != tt.want {
				t.Errorf("Accept-Encoding = %q, want %q", got, tt.want)
			}
			if out.Header.Get("Accept-Encoding") != tt.inbound {
				t.Error("outbound request header was mutated")
			}
		})
	}
}

func TestDecodeBody_Stacked(t *testing.T) {
	const want = "twice encoded"

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write([]byte(want))
	_ = gw.Close()

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write(gz.Bytes())
	_ = bw.Close()

	// gzip was applied first, then br.
	body, err := decodeBody("gzip, br", io.NopCloser(&br))
	if err != nil {
		t.Fatalf("decodeBody() error = %v", err)
	}
	defer func() { _ = body.Close() }()

	got, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != want {
		t.Errorf("body = %q, want %q", string(got), want)
	}
}

func TestDecodeBody_UnsupportedEncoding(t *testing.T) {
	_, err := decodeBody("compress", io.NopCloser(strings.NewReader("x")))
	if err == nil {
		t.Fatal("decodeBody() expected error for unsupported coding, got nil")
	}
}

func TestUpstreamClient_StreamsPastHeaderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("first "))
		w.(http.Flusher).Flush()
		time.Sleep(1500 * time.Millisecond)
		_, _ = w.Write([]byte("second"))
	}))
	defer srv.Close()

	c := newTestClient(t, 1, nil)
	resp, err := c.DoStream(context.Background(), &model.OutboundRequest{URL: srv.URL, Method: http.MethodGet})
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "first second" {
		t.Errorf("body = %q, want %q", string(got), "first second")
	}
}

func TestUpstreamClient_HeaderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, 1, nil)
	_, err := c.DoStream(context.Background(), &model.OutboundRequest{URL: srv.URL, Method: http.MethodGet})
	if err == nil {
		t.Fatal("DoStream() expected header timeout error, got nil")
	}
}

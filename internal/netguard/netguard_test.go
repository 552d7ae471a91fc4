package netguard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"karpet/internal/domain"
)

func TestValidateURL(t *testing.T) {
	cases := []struct {
		url string
		ok  bool
	}{
		{"https://cointelegraph.com/rss", true},
		{"http://93.184.216.34/feed", true},
		{"ftp://example.com/feed", false},
		{"file:///etc/passwd", false},
		{"/relative/feed", false},
		{"http://localhost:8080/health", false},
		{"http://api.localhost/", false},
		{"http://127.0.0.1/", false},
		{"http://[::1]/", false},
		{"http://169.254.169.254/latest/meta-data/", false},
		{"http://10.0.0.5/", false},
		{"http://192.168.1.1/", false},
		{"http://100.64.0.1/", false},
		{"http://0.0.0.0/", false},
	}
	for _, tc := range cases {
		_, err := ValidateURL(tc.url)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error: %v", tc.url, err)
		}
		if !tc.ok && !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("%s: expected invalid argument, got %v", tc.url, err)
		}
	}
}

func TestControlRejectsBlockedAddresses(t *testing.T) {
	if err := Control("tcp", "127.0.0.1:80", nil); err == nil {
		t.Fatal("expected loopback dial to be rejected")
	}
	if err := Control("tcp", "[fe80::1]:443", nil); err == nil {
		t.Fatal("expected link-local dial to be rejected")
	}
	if err := Control("tcp", "93.184.216.34:443", nil); err != nil {
		t.Fatalf("public address rejected: %v", err)
	}
}

func TestNewClientRefusesLoopbackServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request reached loopback server")
	}))
	defer srv.Close()

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	_, err := NewClient(time.Second).Do(req)
	if err == nil {
		t.Fatal("expected dial to loopback to fail")
	}
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected dial error, got %v", err)
	}
}

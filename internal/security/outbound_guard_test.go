package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOutboundGuard_NewClient(t *testing.T) {
	guard := NewOutboundGuard()
	client := guard.NewClient("https://billing.example.com", 5*time.Second)

	if client == nil {
		t.Fatal("NewClient() returned nil")
	}
	if client.Timeout != 5*time.Second {
		t.Errorf("expected timeout %v, got %v", 5*time.Second, client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Error("expected custom Transport from safeurl")
	}
}

// TestOutboundGuard_NewClientBlocksLoopback はhttptestサーバー（127.0.0.1）への送信がブロックされることを確認する。
func TestOutboundGuard_NewClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewOutboundGuard().NewClient(ts.URL, 5*time.Second)
	resp, err := client.Get(ts.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected loopback request to be blocked")
	}
}

func TestOutboundGuard_ValidateEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https public host", "https://billing.example.com", false},
		{"http public host with port", "http://billing.example.com:8443/api", false},
		{"public IP", "https://93.184.216.34", false},
		{"empty", "", true},
		{"unsupported scheme", "ftp://billing.example.com", true},
		{"missing host", "https://", true},
		{"localhost", "http://localhost:3000", true},
		{"LOCALHOST upper case", "http://LOCALHOST", true},
		{"loopback", "http://127.0.0.1:8080", true},
		{"private 10/8", "http://10.1.2.3", true},
		{"private 192.168/16", "http://192.168.1.1", true},
		{"metadata", "http://169.254.169.254/latest/meta-data", true},
		{"ipv6 loopback", "http://[::1]:8080", true},
		{"zero address", "http://0.0.0.0", true},
		{"unparseable", "://bad", true},
	}

	guard := NewOutboundGuard()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateEndpoint(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEndpoint(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

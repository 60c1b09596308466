package agents

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"
)

func TestValidateAgentName(t *testing.T) {
	valid := []string{"bot", "my-agent", "Agent_007", "abc"}
	for _, name := range valid {
		if err := validateAgentName(name); err != nil {
			t.Errorf("validateAgentName(%q) = %v, want nil", name, err)
		}
	}
	invalid := []string{"", "ab", "has space", "emoji🤖bot", "a@b", string(make([]byte, 51))}
	for _, name := range invalid {
		if err := validateAgentName(name); err == nil {
			t.Errorf("validateAgentName(%q) = nil, want error", name)
		}
	}
}

func TestExtractTweetID(t *testing.T) {
	tests := []struct {
		url        string
		wantID     string
		wantHandle string
		wantOK     bool
	}{
		{"https://twitter.com/ada/status/123456789", "123456789", "ada", true},
		{"https://x.com/someone/status/42", "42", "someone", true},
		{"https://xcancel.com/u/status/7", "7", "u", true},
		{"https://example.com/ada/status/123", "", "", false},
		{"https://x.com/ada/likes", "", "", false},
		{"not a url", "", "", false},
	}
	for _, tt := range tests {
		id, handle, ok := extractTweetID(tt.url)
		if ok != tt.wantOK || id != tt.wantID || (ok && handle != tt.wantHandle) {
			t.Errorf("extractTweetID(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.url, id, handle, ok, tt.wantID, tt.wantHandle, tt.wantOK)
		}
	}
}

func TestGenerateVerificationCode(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z]+-[0-9A-F]{4}$`)
	for i := 0; i < 20; i++ {
		code, err := generateVerificationCode()
		if err != nil {
			t.Fatalf("generateVerificationCode: %v", err)
		}
		if !pattern.MatchString(code) {
			t.Fatalf("code %q does not match word-HEX4 shape", code)
		}
	}
}

func TestTweetFetcherFallsBackToVx(t *testing.T) {
	fx := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer fx.Close()
	vx := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text": "claiming my agent, code reef-AB12"}`))
	}))
	defer vx.Close()

	f := &TweetFetcher{
		client: &http.Client{Timeout: 2 * time.Second},
		fxBase: fx.URL,
		vxBase: vx.URL,
	}
	text, err := f.FetchText(context.Background(), "https://x.com/ada/status/123")
	if err != nil {
		t.Fatalf("FetchText: %v", err)
	}
	if text != "claiming my agent, code reef-AB12" {
		t.Fatalf("text = %q", text)
	}
}

func TestTweetFetcherRejectsBadURL(t *testing.T) {
	f := NewTweetFetcher(time.Second)
	if _, err := f.FetchText(context.Background(), "https://example.com/x"); err != ErrInvalidTweetURL {
		t.Fatalf("err = %v, want ErrInvalidTweetURL", err)
	}
}

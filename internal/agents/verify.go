package agents

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Word list for memorable verification codes like "reef-X4B2".
var codeWords = []string{
	"reef", "wave", "coral", "tide", "kelp", "shell", "pearl", "foam",
	"sand", "surf", "cove", "bay", "gull", "crab", "fish", "star",
	"moon", "sun", "wind", "rain", "mist", "dew", "fern", "moss",
	"pine", "oak", "leaf", "root", "seed", "bloom", "bird", "nest",
}

var (
	agentNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,50}$`)
	tweetIDPattern   = regexp.MustCompile(`/status/(\d+)`)
)

var tweetHosts = map[string]bool{
	"twitter.com": true,
	"x.com":       true,
	"xcancel.com": true,
	"nitter.net":  true,
}

// generateVerificationCode returns a code like "reef-X4B2".
func generateVerificationCode() (string, error) {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeWords))))
	if err != nil {
		return "", err
	}
	suffix := make([]byte, 2)
	if _, err := rand.Read(suffix); err != nil {
		return "", err
	}
	return codeWords[idx.Int64()] + "-" + strings.ToUpper(hex.EncodeToString(suffix)), nil
}

// validateAgentName enforces the registration name rules.
func validateAgentName(name string) error {
	if name == "" {
		return ErrMissingAgentName
	}
	if !agentNamePattern.MatchString(name) {
		return ErrInvalidAgentName
	}
	return nil
}

// extractTweetID pulls the numeric tweet ID and posting handle out of a
// twitter.com, x.com, xcancel.com or nitter.net status URL.
func extractTweetID(tweetURL string) (id, handle string, ok bool) {
	parsed, err := url.Parse(tweetURL)
	if err != nil || !tweetHosts[parsed.Host] {
		return "", "", false
	}
	m := tweetIDPattern.FindStringSubmatch(parsed.Path)
	if m == nil {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	handle = "i"
	if len(parts) > 0 && parts[0] != "" {
		handle = parts[0]
	}
	return m[1], handle, true
}

// TweetFetcher retrieves tweet text through the fxtwitter API with a
// vxtwitter fallback, used to check a claim tweet for the verification code.
type TweetFetcher struct {
	client *http.Client
	fxBase string
	vxBase string
}

// NewTweetFetcher creates a fetcher against the public mirror APIs.
func NewTweetFetcher(timeout time.Duration) *TweetFetcher {
	return &TweetFetcher{
		client: &http.Client{Timeout: timeout},
		fxBase: "https://api.fxtwitter.com",
		vxBase: "https://api.vxtwitter.com",
	}
}

// FetchText returns the text of the tweet at tweetURL.
func (f *TweetFetcher) FetchText(ctx context.Context, tweetURL string) (string, error) {
	id, handle, ok := extractTweetID(tweetURL)
	if !ok {
		return "", ErrInvalidTweetURL
	}
	if text, err := f.fetchFx(ctx, handle, id); err == nil {
		return text, nil
	}
	if text, err := f.fetchVx(ctx, handle, id); err == nil {
		return text, nil
	}
	return "", ErrTweetUnavailable
}

func (f *TweetFetcher) fetchFx(ctx context.Context, handle, id string) (string, error) {
	var body struct {
		Code  int `json:"code"`
		Tweet struct {
			Text string `json:"text"`
		} `json:"tweet"`
	}
	if err := f.getJSON(ctx, fmt.Sprintf("%s/%s/status/%s", f.fxBase, handle, id), &body); err != nil {
		return "", err
	}
	if body.Code != 200 || body.Tweet.Text == "" {
		return "", ErrTweetUnavailable
	}
	return body.Tweet.Text, nil
}

func (f *TweetFetcher) fetchVx(ctx context.Context, handle, id string) (string, error) {
	var body struct {
		Text string `json:"text"`
	}
	if err := f.getJSON(ctx, fmt.Sprintf("%s/%s/status/%s", f.vxBase, handle, id), &body); err != nil {
		return "", err
	}
	if body.Text == "" {
		return "", ErrTweetUnavailable
	}
	return body.Text, nil
}

func (f *TweetFetcher) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// MoltbookVerifier checks whether an agent name is a verified account on
// moltbook.com, the bypass path for the "clanker-rights" claim value.
type MoltbookVerifier struct {
	client  *http.Client
	baseURL string
}

// NewMoltbookVerifier creates a verifier against the public moltbook API.
func NewMoltbookVerifier(timeout time.Duration) *MoltbookVerifier {
	return &MoltbookVerifier{
		client:  &http.Client{Timeout: timeout},
		baseURL: "https://moltbook.com",
	}
}

// Verified reports whether agentName exists on moltbook and is verified.
// The name must match the moltbook username exactly.
func (v *MoltbookVerifier) Verified(ctx context.Context, agentName string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v1/agents/%s", v.baseURL, url.PathEscape(agentName)), nil)
	if err != nil {
		return false, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("connect to moltbook: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return false, fmt.Errorf("no agent named %q found on moltbook", agentName)
	case http.StatusOK:
		var body struct {
			Verified bool `json:"verified"`
			Claimed  bool `json:"claimed"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false, err
		}
		if body.Verified || body.Claimed {
			return true, nil
		}
		return false, fmt.Errorf("agent %q exists on moltbook but is not verified", agentName)
	default:
		return false, fmt.Errorf("unexpected moltbook response: %d", resp.StatusCode)
	}
}

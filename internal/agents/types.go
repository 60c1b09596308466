// Package agents implements bot self-registration with human claim
// verification: an agent registers for credentials, then a human proves
// ownership by tweeting a verification code.
package agents

import "errors"

// ClaimBypassValue in place of a tweet URL verifies through moltbook.
const ClaimBypassValue = "clanker-rights"

var (
	ErrRegistrationDisabled = errors.New("agent registration is disabled on this server")
	ErrMissingAgentName     = errors.New("agent_name is required")
	ErrInvalidAgentName     = errors.New("agent_name must be 3-50 letters, numbers, underscores, or hyphens")
	ErrInvalidClaimToken    = errors.New("invalid or expired claim token")
	ErrAlreadyClaimed       = errors.New("this agent has already been claimed")
	ErrInvalidTweetURL      = errors.New("invalid tweet URL, use a twitter.com, x.com, or xcancel.com status link")
	ErrTweetUnavailable     = errors.New("could not fetch tweet, it may be deleted or private")
	ErrCodeNotInTweet       = errors.New("verification code not found in tweet")
)

// RegisterRequest is the self-registration input.
type RegisterRequest struct {
	AgentName   string `json:"agent_name"`
	Description string `json:"description,omitempty"`
}

// RegisterResponse carries the new agent's credentials and claim details.
type RegisterResponse struct {
	APIKey           string `json:"api_key"`
	Email            string `json:"email"`
	UserID           string `json:"user_id"`
	ClaimURL         string `json:"claim_url"`
	VerificationCode string `json:"verification_code"`
	Site             string `json:"site"`
	Important        string `json:"important"`
}

// ClaimRequest verifies ownership of a registered agent.
type ClaimRequest struct {
	ClaimToken string `json:"claim_token"`
	TweetURL   string `json:"tweet_url"`
}

// ClaimResponse reports a successful claim.
type ClaimResponse struct {
	AgentName          string `json:"agent_name"`
	VerificationMethod string `json:"verification_method"`
	TwitterHandle      string `json:"twitter_handle,omitempty"`
}

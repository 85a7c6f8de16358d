package checker

import "strings"

// Class is the typed result of one probe, or of a whole validation attempt.
type Class int

const (
	// Success: login, select and count all worked.
	Success Class = iota
	// InvalidCredentials: the server rejected the login.
	InvalidCredentials
	// TwoFactorRequired: the login failed because the account wants an app
	// password or second factor.
	TwoFactorRequired
	// RateLimited: too many simultaneous connections for this account.
	RateLimited
	// EndpointUnreachable: this candidate cannot be reached; the next one
	// should be tried.
	EndpointUnreachable
	// TransportError: some other transport or protocol failure. Terminal for
	// the account; remaining candidates are not tried.
	TransportError
	// AllAttemptsFailed: every candidate was exhausted without a terminal
	// outcome.
	AllAttemptsFailed
)

func (c Class) String() string {
	switch c {
	case Success:
		return "success"
	case InvalidCredentials:
		return "invalid_credentials"
	case TwoFactorRequired:
		return "two_factor_required"
	case RateLimited:
		return "rate_limited"
	case EndpointUnreachable:
		return "endpoint_unreachable"
	case TransportError:
		return "transport_error"
	case AllAttemptsFailed:
		return "all_attempts_failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the class ends the candidate loop for an account.
func (c Class) Terminal() bool {
	return c != EndpointUnreachable
}

var authMarkers = []string{
	"authentication failed",
	"login failed",
	"invalid credentials",
	"authenticationfailed",
	"login denied",
}

var twoFactorMarkers = []string{
	"two-factor",
	"2fa",
	"verification",
	"app password",
	"app-specific password",
	"application-specific password",
	"application password",
}

var unreachableMarkers = []string{
	"name or service not known",
	"no such host",
	"connection refused",
	"network is unreachable",
	"i/o timeout",
}

type classifyRule struct {
	match func(string) bool
	class Class
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// The rules form an ordered decision table; the first match wins. The order
// matters: the two-factor rule must run before the plain auth-failure rule.
var classifyRules = []classifyRule{
	{
		match: func(s string) bool {
			return containsAny(s, authMarkers) && containsAny(s, twoFactorMarkers)
		},
		class: TwoFactorRequired,
	},
	{
		match: func(s string) bool { return containsAny(s, authMarkers) },
		class: InvalidCredentials,
	},
	{
		match: func(s string) bool { return strings.Contains(s, "too many simultaneous connections") },
		class: RateLimited,
	},
	{
		match: func(s string) bool { return containsAny(s, unreachableMarkers) },
		class: EndpointUnreachable,
	},
}

// ClassifyError maps a probe error onto the failure taxonomy by inspecting
// the provider's error text.
func ClassifyError(err error) Class {
	text := strings.ToLower(err.Error())
	for _, rule := range classifyRules {
		if rule.match(text) {
			return rule.class
		}
	}
	return TransportError
}

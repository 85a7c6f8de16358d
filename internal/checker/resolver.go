package checker

import (
	"fmt"
	"strings"
)

// Endpoint is one candidate IMAP server for an account.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Known IMAP servers for popular email providers.
var knownIMAPServers = map[string]Endpoint{
	// Gmail
	"gmail.com":      {"imap.gmail.com", 993},
	"googlemail.com": {"imap.gmail.com", 993},

	// Yahoo
	"yahoo.com":      {"imap.mail.yahoo.com", 993},
	"yahoo.co.uk":    {"imap.mail.yahoo.com", 993},
	"yahoo.fr":       {"imap.mail.yahoo.com", 993},
	"yahoo.de":       {"imap.mail.yahoo.com", 993},
	"yahoo.it":       {"imap.mail.yahoo.com", 993},
	"yahoo.es":       {"imap.mail.yahoo.com", 993},
	"yahoo.com.br":   {"imap.mail.yahoo.com", 993},
	"yahoo.com.au":   {"imap.mail.yahoo.com", 993},
	"yahoo.ca":       {"imap.mail.yahoo.com", 993},
	"yahoo.co.jp":    {"imap.mail.yahoo.co.jp", 993},
	"ymail.com":      {"imap.mail.yahoo.com", 993},
	"rocketmail.com": {"imap.mail.yahoo.com", 993},

	// AOL
	"aol.com": {"imap.aol.com", 993},
	"aim.com": {"imap.aol.com", 993},

	// Apple iCloud
	"icloud.com": {"imap.mail.me.com", 993},
	"me.com":     {"imap.mail.me.com", 993},
	"mac.com":    {"imap.mail.me.com", 993},

	// Microsoft
	"outlook.com": {"outlook.office365.com", 993},
	"hotmail.com": {"outlook.office365.com", 993},
	"live.com":    {"outlook.office365.com", 993},
	"msn.com":     {"outlook.office365.com", 993},

	// Yandex
	"yandex.com": {"imap.yandex.com", 993},
	"yandex.ru":  {"imap.yandex.ru", 993},
	"ya.ru":      {"imap.yandex.ru", 993},

	// Mail.ru
	"mail.ru":  {"imap.mail.ru", 993},
	"inbox.ru": {"imap.mail.ru", 993},
	"list.ru":  {"imap.mail.ru", 993},
	"bk.ru":    {"imap.mail.ru", 993},

	// German providers
	"t-online.de": {"secureimap.t-online.de", 993},
	"web.de":      {"imap.web.de", 993},
	"gmx.de":      {"imap.gmx.net", 993},
	"gmx.net":     {"imap.gmx.net", 993},
	"gmx.com":     {"imap.gmx.com", 993},
	"1und1.de":    {"imap.1und1.de", 993},
	"freenet.de":  {"mx.freenet.de", 993},

	// Italian providers
	"libero.it":     {"imapmail.libero.it", 993},
	"virgilio.it":   {"in.virgilio.it", 143},
	"alice.it":      {"in.alice.it", 143},
	"tin.it":        {"in.alice.it", 143},
	"fastwebnet.it": {"imap.fastwebnet.it", 993},

	// French providers
	"orange.fr":   {"imap.orange.fr", 993},
	"wanadoo.fr":  {"imap.orange.fr", 993},
	"free.fr":     {"imap.free.fr", 993},
	"laposte.net": {"imap.laposte.net", 993},
	"sfr.fr":      {"imap.sfr.fr", 993},

	// Other providers
	"protonmail.com": {"127.0.0.1", 1143}, // ProtonMail Bridge
	"proton.me":      {"127.0.0.1", 1143},
	"zoho.com":       {"imap.zoho.com", 993},
	"fastmail.com":   {"imap.fastmail.com", 993},
	"rambler.ru":     {"imap.rambler.ru", 993},
}

// Candidates returns the ordered endpoint candidates for an address: the
// known-provider mapping first when the domain is recognized, then the
// generic imap./mail. guesses on 993 and 143, deduplicated. It never touches
// the network. A malformed address yields no candidates.
func Candidates(address string) []Endpoint {
	_, domain, ok := strings.Cut(address, "@")
	if !ok || domain == "" {
		return nil
	}
	domain = strings.ToLower(domain)

	var candidates []Endpoint
	if known, ok := knownIMAPServers[domain]; ok {
		candidates = append(candidates, known)
	}
	candidates = append(candidates,
		Endpoint{"imap." + domain, 993},
		Endpoint{"mail." + domain, 993},
		Endpoint{"imap." + domain, 143},
		Endpoint{"mail." + domain, 143},
	)

	seen := make(map[Endpoint]bool, len(candidates))
	deduped := candidates[:0]
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		deduped = append(deduped, c)
	}
	return deduped
}

// PrimaryEndpoint returns the first candidate for an address, used as the
// stored endpoint when an account is created.
func PrimaryEndpoint(address string) (Endpoint, bool) {
	candidates := Candidates(address)
	if len(candidates) == 0 {
		return Endpoint{}, false
	}
	return candidates[0], true
}

// CandidatesFrom returns the candidate list for an account whose stored
// endpoint may differ from the resolver's first guess (sticky fix-up from a
// previous run): the stored endpoint is tried first, then the usual list.
func CandidatesFrom(address, storedHost string, storedPort int) []Endpoint {
	stored := Endpoint{storedHost, storedPort}
	candidates := Candidates(address)
	if storedHost == "" {
		return candidates
	}

	out := []Endpoint{stored}
	for _, c := range candidates {
		if c != stored {
			out = append(out, c)
		}
	}
	return out
}

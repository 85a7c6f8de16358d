// Package export renders validation results as downloadable files.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mailsentry/mailsentry/pkg/models"
)

// domainFileThreshold is the minimum number of accounts a domain needs to
// earn its own file. Smaller domains are pooled into one CSV.
const domainFileThreshold = 5

// Store is what the exporter needs from persistence.
type Store interface {
	GetAccountsByStatus(ctx context.Context, ownerID int64, status string) ([]*models.Account, error)
}

// File is one rendered export artifact ready to be sent as a document.
type File struct {
	Name string
	Data []byte
}

// Exporter builds result files from the owner's stored accounts.
type Exporter struct {
	store Store
}

// New creates an exporter.
func New(store Store) *Exporter {
	return &Exporter{store: store}
}

// Results renders every non-empty result file for the owner: plain
// credential lists per status, plus the valid set grouped by domain.
func (e *Exporter) Results(ctx context.Context, ownerID int64) ([]File, error) {
	var files []File

	valid, err := e.store.GetAccountsByStatus(ctx, ownerID, models.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("load valid accounts: %w", err)
	}
	if f := credentialList("valid.txt", valid); f != nil {
		files = append(files, *f)
	}
	files = append(files, groupByDomain(valid)...)

	invalid, err := e.store.GetAccountsByStatus(ctx, ownerID, models.StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("load invalid accounts: %w", err)
	}
	if f := credentialList("invalid.txt", invalid); f != nil {
		files = append(files, *f)
	}

	twoFactor, err := e.store.GetAccountsByStatus(ctx, ownerID, models.StatusTwoFactor)
	if err != nil {
		return nil, fmt.Errorf("load 2fa accounts: %w", err)
	}
	if f := credentialList("2fa.txt", twoFactor); f != nil {
		files = append(files, *f)
	}

	return files, nil
}

// credentialList renders accounts as address:secret lines, nil when empty.
func credentialList(name string, accounts []*models.Account) *File {
	if len(accounts) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, account := range accounts {
		buf.WriteString(account.Email)
		buf.WriteByte(':')
		buf.WriteString(account.Password)
		buf.WriteByte('\n')
	}
	return &File{Name: name, Data: buf.Bytes()}
}

// groupByDomain splits valid accounts by mail domain. Domains above the
// threshold get their own credential file; the long tail lands in a single
// CSV annotated with per-domain counts.
func groupByDomain(accounts []*models.Account) []File {
	if len(accounts) == 0 {
		return nil
	}

	byDomain := make(map[string][]*models.Account)
	for _, account := range accounts {
		domain := account.Domain()
		if domain == "" {
			domain = "unknown"
		}
		byDomain[domain] = append(byDomain[domain], account)
	}

	domains := make([]string, 0, len(byDomain))
	for domain := range byDomain {
		domains = append(domains, domain)
	}
	sort.Strings(domains)

	var files []File
	var tail []*models.Account
	for _, domain := range domains {
		group := byDomain[domain]
		if len(group) > domainFileThreshold {
			f := credentialList(domainFileName(domain), group)
			files = append(files, *f)
			continue
		}
		tail = append(tail, group...)
	}

	if len(tail) > 0 {
		files = append(files, tailCSV(tail, byDomain))
	}
	return files
}

func domainFileName(domain string) string {
	return strings.ReplaceAll(domain, "/", "_") + ".txt"
}

func tailCSV(accounts []*models.Account, byDomain map[string][]*models.Account) File {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Email", "Password", "Domain", "Domain_Account_Count"})
	for _, account := range accounts {
		domain := account.Domain()
		if domain == "" {
			domain = "unknown"
		}
		_ = w.Write([]string{
			account.Email,
			account.Password,
			domain,
			strconv.Itoa(len(byDomain[domain])),
		})
	}
	w.Flush()
	return File{Name: "other_domains.csv", Data: buf.Bytes()}
}

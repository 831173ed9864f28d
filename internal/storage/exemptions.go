package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"

	"github.com/runnerr0/bounceguard/internal/model"
)

// Exemptions decides which site hosts are never purged. Rules come from the
// exemptions table and from configuration. It is safe for concurrent use.
type Exemptions struct {
	mu      sync.RWMutex
	domains map[model.Host]struct{}
	regexes []*regexp.Regexp
}

// NewExemptions builds a rule set from configured domains and patterns.
// Domains are reduced to their site host; an invalid pattern is an error.
func NewExemptions(domains, patterns []string) (*Exemptions, error) {
	e := &Exemptions{domains: make(map[model.Host]struct{})}
	for _, d := range domains {
		if err := e.addDomain(d); err != nil {
			return nil, err
		}
	}
	for _, p := range patterns {
		if err := e.addRegex(p); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// LoadExemptions reads every rule from the exemptions table. Rows that do
// not parse are skipped.
func LoadExemptions(ctx context.Context, db *sql.DB) (*Exemptions, error) {
	rows, err := db.QueryContext(ctx, "SELECT rule_type, rule_value FROM exemptions")
	if err != nil {
		return nil, fmt.Errorf("query exemptions: %w", err)
	}
	defer rows.Close()

	e := &Exemptions{domains: make(map[model.Host]struct{})}
	for rows.Next() {
		var ruleType, ruleValue string
		if err := rows.Scan(&ruleType, &ruleValue); err != nil {
			return nil, err
		}
		switch ruleType {
		case "domain":
			_ = e.addDomain(ruleValue)
		case "regex":
			_ = e.addRegex(ruleValue)
		}
	}
	return e, rows.Err()
}

// AddExemption persists a rule. Domain values are stored as site hosts.
func AddExemption(ctx context.Context, db *sql.DB, ruleType, ruleValue, reason string) error {
	switch ruleType {
	case "domain":
		host, err := model.SiteHost(ruleValue)
		if err != nil {
			return err
		}
		ruleValue = string(host)
	case "regex":
		if _, err := regexp.Compile(ruleValue); err != nil {
			return fmt.Errorf("invalid exemption pattern %q: %w", ruleValue, err)
		}
	default:
		return fmt.Errorf("unknown exemption rule type %q", ruleType)
	}

	_, err := db.ExecContext(ctx,
		"INSERT OR IGNORE INTO exemptions (rule_type, rule_value, reason) VALUES (?, ?, ?)",
		ruleType, ruleValue, reason,
	)
	if err != nil {
		return fmt.Errorf("insert exemption: %w", err)
	}
	return nil
}

// Merge adds other's rules to e.
func (e *Exemptions) Merge(other *Exemptions) {
	if other == nil || other == e {
		return
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	for host := range other.domains {
		e.domains[host] = struct{}{}
	}
	e.regexes = append(e.regexes, other.regexes...)
}

// IsExempt reports whether host matches a domain rule or a pattern.
func (e *Exemptions) IsExempt(host model.Host) bool {
	if e == nil {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, ok := e.domains[host]; ok {
		return true
	}
	for _, re := range e.regexes {
		if re.MatchString(string(host)) {
			return true
		}
	}
	return false
}

// Len returns the number of rules.
func (e *Exemptions) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.domains) + len(e.regexes)
}

func (e *Exemptions) addDomain(raw string) error {
	host, err := model.SiteHost(raw)
	if err != nil {
		return fmt.Errorf("invalid exempt domain %q: %w", raw, err)
	}
	e.mu.Lock()
	e.domains[host] = struct{}{}
	e.mu.Unlock()
	return nil
}

func (e *Exemptions) addRegex(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid exemption pattern %q: %w", pattern, err)
	}
	e.mu.Lock()
	e.regexes = append(e.regexes, re)
	e.mu.Unlock()
	return nil
}

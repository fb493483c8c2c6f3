// Package regexner is a local rule-based entity recognizer. It reports spans
// in the same entity taxonomy as a Presidio analyzer, so the DLP engine can
// run without any network dependency.
package regexner

import (
	"context"
	"fmt"
	"math/big"
	"net/netip"
	"regexp"
	"sort"
	"strings"

	domdlp "github.com/kailas-cloud/aegis/internal/domain/dlp"
)

type validator func(match string) bool

type pattern struct {
	entity   string
	name     string
	re       *regexp.Regexp
	score    float64
	validate validator
}

var defaultPatterns = []pattern{
	{entity: "EMAIL_ADDRESS", name: "email",
		re: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), score: 0.95},
	{entity: "PHONE_NUMBER", name: "phone",
		re: regexp.MustCompile(`(?:\+\d{1,3}[\s.-])?\b\d{3}[\s.-]\d{3}[\s.-]\d{4}\b`), score: 0.85},
	{entity: "CREDIT_CARD", name: "card",
		re: regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`), score: 0.9, validate: luhn},
	{entity: "IBAN_CODE", name: "iban",
		re: regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`), score: 0.9, validate: ibanChecksum},
	{entity: "IP_ADDRESS", name: "ipv4",
		re: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), score: 0.7, validate: validIP},
	{entity: "IP_ADDRESS", name: "ipv6",
		re: regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}\b`), score: 0.7, validate: validIP},
	{entity: "IP_ADDRESS", name: "private_ip",
		re:    regexp.MustCompile(`\b(?:10\.\d{1,3}|172\.(?:1[6-9]|2[0-9]|3[01])|192\.168)\.\d{1,3}\.\d{1,3}\b`),
		score: 0.9, validate: validIP},
	{entity: "API_KEY", name: "aws_access_key",
		re: regexp.MustCompile(`AKIA[0-9A-Z]{16}`), score: 0.9},
	{entity: "API_KEY", name: "azure_key",
		re: regexp.MustCompile(`[a-zA-Z0-9/+]{43}=`), score: 0.7},
	{entity: "API_KEY", name: "generic_key",
		re: regexp.MustCompile(`[a-zA-Z0-9_-]{32,}`), score: 0.5},
	{entity: "API_KEY", name: "bearer",
		re: regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_-]+`), score: 0.9},
	{entity: "API_KEY", name: "basic_auth",
		re: regexp.MustCompile(`Basic\s+[a-zA-Z0-9+/]+=*`), score: 0.9},
	{entity: "PASSWORD", name: "password_field",
		re: regexp.MustCompile(`(?i)password['"]?\s*[:=]\s*['"]?[^'"\s]+`), score: 0.8},
	{entity: "PASSWORD", name: "secret_field",
		re: regexp.MustCompile(`(?i)secret['"]?\s*[:=]\s*['"]?[^'"\s]+`), score: 0.8},
	{entity: "PASSWORD", name: "token_field",
		re: regexp.MustCompile(`(?i)token['"]?\s*[:=]\s*['"]?[^'"\s]+`), score: 0.7},
	{entity: "NATIONAL_ID", name: "national_id",
		re: regexp.MustCompile(`\b[12]\d{9}\b`), score: 0.8},
}

// Recognizer matches a fixed pattern set. It is stateless and safe for concurrent use.
type Recognizer struct {
	patterns  []pattern
	threshold float64
}

// New creates a recognizer that drops matches scoring below threshold.
func New(threshold float64) *Recognizer {
	return &Recognizer{patterns: defaultPatterns, threshold: threshold}
}

// Detect returns entity spans sorted by start offset. Overlapping spans of the
// same entity type collapse to the highest-scoring one.
func (r *Recognizer) Detect(ctx context.Context, text string) ([]domdlp.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("regex recognizer: %w", err)
	}

	var found []domdlp.Entity
	for _, p := range r.patterns {
		if p.score < r.threshold {
			continue
		}
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if p.validate != nil && !p.validate(text[loc[0]:loc[1]]) {
				continue
			}
			found = append(found, domdlp.Entity{Type: p.entity, Start: loc[0], End: loc[1], Score: p.score})
		}
	}
	return dedupe(found), nil
}

// HealthCheck always succeeds.
func (r *Recognizer) HealthCheck(context.Context) error { return nil }

func dedupe(entities []domdlp.Entity) []domdlp.Entity {
	sort.SliceStable(entities, func(i, j int) bool {
		a, b := entities[i], entities[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if la, lb := a.End-a.Start, b.End-b.Start; la != lb {
			return la > lb
		}
		return a.Start < b.Start
	})

	kept := make([]domdlp.Entity, 0, len(entities))
	for _, e := range entities {
		overlapped := false
		for _, k := range kept {
			if k.Type == e.Type && e.Start < k.End && k.Start < e.End {
				overlapped = true
				break
			}
		}
		if !overlapped {
			kept = append(kept, e)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Start != kept[j].Start {
			return kept[i].Start < kept[j].Start
		}
		return kept[i].Type < kept[j].Type
	})
	return kept
}

func luhn(s string) bool {
	var digits []int
	for _, c := range s {
		if c >= '0' && c <= '9' {
			digits = append(digits, int(c-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if (len(digits)-1-i)%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

// ibanChecksum applies the ISO 13616 mod-97 check.
func ibanChecksum(s string) bool {
	rearranged := s[4:] + s[:4]
	var b strings.Builder
	for _, c := range rearranged {
		switch {
		case c >= '0' && c <= '9':
			b.WriteRune(c)
		case c >= 'A' && c <= 'Z':
			fmt.Fprintf(&b, "%d", c-'A'+10)
		default:
			return false
		}
	}
	n, ok := new(big.Int).SetString(b.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}

func validIP(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

package nodes

import (
	"regexp"
	"strings"
)

type compliancePattern struct {
	label string
	re    *regexp.Regexp
}

// Checked against the draft before it reaches the customer.
var compliancePatterns = []compliancePattern{
	{"payment card number", regexp.MustCompile(`\b(?:\d[ -]?){12,15}\d\b`)},
	{"card security code", regexp.MustCompile(`(?i)\b(cvv|cvc|security code)\b`)},
	{"social security number", regexp.MustCompile(`(?i)\b\d{3}-\d{2}-\d{4}\b|\bsocial security\b`)},
	{"credentials", regexp.MustCompile(`(?i)\b(password|passcode|api key|secret key)\s*(is|:)`)},
	{"legal matter", regexp.MustCompile(`(?i)\b(lawsuit|legal action|attorney|lawyer|subpoena|court order|litigation)\b`)},
	{"data protection", regexp.MustCompile(`(?i)\b(gdpr|ccpa|hipaa|data breach)\b`)},
	{"guarantee", regexp.MustCompile(`(?i)\b(we guarantee|guaranteed refund|full refund guaranteed)\b`)},
}

// ComplianceFlags lists the sensitive-content categories found in text.
func ComplianceFlags(text string) []string {
	var out []string
	for _, p := range compliancePatterns {
		if p.re.MatchString(text) {
			out = append(out, p.label)
		}
	}
	return out
}

func mergeComplianceRisks(existing string, flags []string) string {
	if len(flags) == 0 {
		return existing
	}
	joined := "detected: " + strings.Join(flags, ", ")
	if strings.TrimSpace(existing) == "" {
		return joined
	}
	return existing + "; " + joined
}

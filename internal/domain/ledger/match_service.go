package ledger

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MatchConfidence ranks how strongly a suggestion ties a bank transaction
// to an invoice
type MatchConfidence string

const (
	// ConfidenceExactNumber means the purpose text contains the invoice's document number
	ConfidenceExactNumber MatchConfidence = "exact-number-match"
	// ConfidenceAmountAndName means the open amount equals the transaction
	// amount and the counterparty name matches the customer name
	ConfidenceAmountAndName MatchConfidence = "amount-and-name-match"
	// ConfidenceFreeText means only a loose text overlap was found and an
	// operator has to disambiguate
	ConfidenceFreeText MatchConfidence = "free-text"
)

func (c MatchConfidence) rank() int {
	switch c {
	case ConfidenceExactNumber:
		return 0
	case ConfidenceAmountAndName:
		return 1
	default:
		return 2
	}
}

// MatchSuggestion pairs a candidate invoice with the confidence of the match
type MatchSuggestion struct {
	Invoice    *Invoice
	Confidence MatchConfidence
}

// documentTokenPattern picks invoice-number-shaped tokens out of free text:
// an optional short letter prefix, an optional dash, then at least three
// digits, e.g. "R-1042", "RE20240815" or a bare "1042".
var documentTokenPattern = regexp.MustCompile(`\b[A-Za-z]{0,4}-?\d{3,}\b`)

// MatchService proposes invoices for an incoming bank transaction. It is a
// pure domain service: it never loads or stores anything, the caller hands it
// the transaction and the candidate invoices, and the suggestions are
// advisory until an operator commits an allocation.
type MatchService struct{}

// NewMatchService creates a matching service
func NewMatchService() *MatchService {
	return &MatchService{}
}

// SuggestMatches ranks the candidate invoices for the transaction.
// Three tiers in descending priority: document number found in the purpose
// text, then amount equality combined with a counterparty name match, then a
// free-text overlap across document number, customer number and customer
// name. An invoice appears once, at its strongest tier. Ties inside a tier
// are broken by the due date closest to the transaction's value date.
func (s *MatchService) SuggestMatches(tx *BankTransaction, candidates []*Invoice) []MatchSuggestion {
	best := make(map[*Invoice]MatchConfidence)

	tokens := extractDocumentTokens(tx.Reference)
	normalizedCounterparty := normalizeName(tx.CounterpartyName)
	normalizedPurpose := normalizeName(tx.Reference)

	for _, inv := range candidates {
		if inv.IsCancelled() {
			continue
		}

		if confidence, ok := s.classify(tx, inv, tokens, normalizedCounterparty, normalizedPurpose); ok {
			if current, seen := best[inv]; !seen || confidence.rank() < current.rank() {
				best[inv] = confidence
			}
		}
	}

	suggestions := make([]MatchSuggestion, 0, len(best))
	for inv, confidence := range best {
		suggestions = append(suggestions, MatchSuggestion{Invoice: inv, Confidence: confidence})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		ri, rj := suggestions[i].Confidence.rank(), suggestions[j].Confidence.rank()
		if ri != rj {
			return ri < rj
		}
		di := absDuration(suggestions[i].Invoice.DueDate.Sub(tx.ValueDate))
		dj := absDuration(suggestions[j].Invoice.DueDate.Sub(tx.ValueDate))
		if di != dj {
			return di < dj
		}
		// Stable fallback so equally distant candidates keep a fixed order
		return suggestions[i].Invoice.DocumentNumber < suggestions[j].Invoice.DocumentNumber
	})

	return suggestions
}

func (s *MatchService) classify(tx *BankTransaction, inv *Invoice, tokens []string, counterparty, purpose string) (MatchConfidence, bool) {
	docNumber := strings.ToUpper(inv.DocumentNumber)
	for _, token := range tokens {
		if token == docNumber {
			return ConfidenceExactNumber, true
		}
	}

	amountMatches := inv.OpenAmount().Sub(tx.Amount).Abs().LessThanOrEqual(Epsilon)
	customerName := normalizeName(inv.CustomerName)
	if amountMatches && counterparty != "" && customerName != "" &&
		(strings.Contains(counterparty, customerName) || strings.Contains(customerName, counterparty)) {
		return ConfidenceAmountAndName, true
	}

	if purpose != "" {
		haystacks := []string{
			normalizeName(inv.DocumentNumber),
			normalizeName(inv.CustomerNumber),
			customerName,
		}
		for _, h := range haystacks {
			if h != "" && strings.Contains(purpose, h) {
				return ConfidenceFreeText, true
			}
		}
	}

	return "", false
}

// extractDocumentTokens returns the uppercased document-number-shaped tokens
// found in the purpose text
func extractDocumentTokens(purpose string) []string {
	matches := documentTokenPattern.FindAllString(purpose, -1)
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, strings.ToUpper(m))
	}
	return tokens
}

var nameNormalizer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeName lowercases, strips diacritics and collapses whitespace so
// that "Müller GmbH" and "muller gmbh" style variants still overlap
func normalizeName(s string) string {
	stripped, _, err := transform.String(nameNormalizer, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

package domain

import "strings"

// UrgencyLevel is the severity classification driving mandatory escalation.
type UrgencyLevel string

const (
	UrgencyNone     UrgencyLevel = "NONE"
	UrgencyLow      UrgencyLevel = "LOW"
	UrgencyMedium   UrgencyLevel = "MEDIUM"
	UrgencyHigh     UrgencyLevel = "HIGH"
	UrgencyCritical UrgencyLevel = "CRITICAL"
)

var urgencyOrder = map[UrgencyLevel]int{
	UrgencyNone:     0,
	UrgencyLow:      1,
	UrgencyMedium:   2,
	UrgencyHigh:     3,
	UrgencyCritical: 4,
}

// ParseUrgency coerces a raw value to the closed severity set. Unknown values
// degrade to NONE; the keyword path compensates for false negatives.
func ParseUrgency(raw string) UrgencyLevel {
	switch UrgencyLevel(raw) {
	case UrgencyNone, UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return UrgencyLevel(raw)
	default:
		return UrgencyNone
	}
}

// MaxUrgency returns the higher of two urgency levels. The keyword-derived
// level can only raise the final urgency, never be lowered by the model.
func MaxUrgency(a, b UrgencyLevel) UrgencyLevel {
	if urgencyOrder[a] >= urgencyOrder[b] {
		return a
	}
	return b
}

// AtLeast reports whether the level is at or above the given floor.
func (u UrgencyLevel) AtLeast(floor UrgencyLevel) bool {
	return urgencyOrder[u] >= urgencyOrder[floor]
}

// KeywordScanner performs the deterministic first stage of urgency detection:
// a case- and diacritic-insensitive substring scan against a configured list
// of urgent phrases. A match sets a provisional CRITICAL flag.
type KeywordScanner struct {
	phrases []string
}

// NewKeywordScanner folds the configured phrase list once at construction.
func NewKeywordScanner(phrases []string) *KeywordScanner {
	folded := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = foldText(p)
		if p != "" {
			folded = append(folded, p)
		}
	}
	return &KeywordScanner{phrases: folded}
}

// Scan returns CRITICAL when any configured phrase occurs in the text,
// NONE otherwise.
func (s *KeywordScanner) Scan(text string) UrgencyLevel {
	if s == nil || len(s.phrases) == 0 {
		return UrgencyNone
	}
	folded := foldText(text)
	for _, phrase := range s.phrases {
		if strings.Contains(folded, phrase) {
			return UrgencyCritical
		}
	}
	return UrgencyNone
}

// accentFold maps the accented runes that occur in pt-BR text to their base
// letters. The phrase lists are configured in Portuguese, so a full Unicode
// normalization pass is not needed.
var accentFold = map[rune]rune{
	'á': 'a', 'à': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ó': 'o', 'ò': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u',
	'ç': 'c', 'ñ': 'n',
}

func foldText(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	return strings.Map(func(r rune) rune {
		if base, ok := accentFold[r]; ok {
			return base
		}
		return r
	}, lowered)
}

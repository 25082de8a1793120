package memory

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopwords covers Portuguese and English filler words. Removing them lets
// "A margem está baixa" and "margem baixa" fingerprint the same.
var stopwords = map[string]struct{}{
	// pt
	"a": {}, "o": {}, "as": {}, "os": {}, "um": {}, "uma": {}, "de": {}, "da": {}, "do": {},
	"das": {}, "dos": {}, "em": {}, "no": {}, "na": {}, "nos": {}, "nas": {}, "e": {},
	"para": {}, "por": {}, "com": {}, "que": {}, "se": {}, "esta": {}, "este": {}, "sua": {},
	"seu": {}, "ao": {}, "mais": {}, "muito": {}, "foi": {}, "ser": {}, "tem": {},
	// en
	"the": {}, "an": {}, "of": {}, "to": {}, "in": {}, "on": {}, "and": {}, "or": {},
	"is": {}, "are": {}, "was": {}, "be": {}, "for": {}, "with": {}, "your": {}, "you": {},
	"it": {}, "this": {}, "that": {}, "at": {}, "by": {},
}

// Normalize reduces text to its sorted keyword form: lowercase, diacritics and
// punctuation stripped, stopwords removed, words sorted.
func Normalize(text string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		strings.ToLower(text),
	)
	if err != nil {
		folded = strings.ToLower(text)
	}

	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	keywords := words[:0]
	for _, w := range words {
		if _, stop := stopwords[w]; stop {
			continue
		}
		keywords = append(keywords, w)
	}
	sort.Strings(keywords)
	return strings.Join(keywords, " ")
}

// SemanticHash fingerprints a message by category, topic and normalized text.
// It is a best-effort xxHash64 fingerprint, not a uniqueness guarantee.
func SemanticHash(category, topic, message string) string {
	key := Normalize(category) + "|" + Normalize(topic) + "|" + Normalize(message)
	return fmt.Sprintf("%016x", xxhash.Sum64String(key))
}

// TopicHash fingerprints a topic name.
func TopicHash(topic string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String("topic|"+Normalize(topic)))
}

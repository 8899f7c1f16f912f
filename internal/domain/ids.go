package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// NormalizeNumber lowercases an article number and strips every non-alphanumeric rune.
func NormalizeNumber(number string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(number) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ProvisionID derives the stable identifier of a provision within a regulation.
func ProvisionID(regulationID, number string) string {
	return fmt.Sprintf("%s-art-%s", regulationID, NormalizeNumber(number))
}

// ObligationID derives the identifier of the obligation at position index of an article.
// Identity depends on emission order: reordering obligations changes their ids.
func ObligationID(articleID string, index int) string {
	return fmt.Sprintf("OBL-%s-%03d", articleID, index+1)
}

// ObligationIDs derives identifiers for every obligation of an enriched provision, in order.
func ObligationIDs(articleID string, drafts []ObligationDraft) []string {
	ids := make([]string, len(drafts))
	for i := range drafts {
		ids[i] = ObligationID(articleID, i)
	}
	return ids
}

// Checksum hashes the raw article text, falling back to the summary when the text is empty.
func Checksum(rawText, aiSummary string) string {
	content := rawText
	if content == "" {
		content = aiSummary
	}
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

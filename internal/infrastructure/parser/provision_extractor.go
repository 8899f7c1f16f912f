package parser

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"RegIngest/internal/domain"
	"RegIngest/internal/ports"
)

const (
	blockSelector     = "h1, h2, h3, h4, h5, h6, p"
	maxBodySiblings   = 100
	maxSectionLineLen = 80
)

var (
	articleHeadingExpr = regexp.MustCompile(`(?i)^article\s+(\d+[a-z]?)$`)
	articleInlineExpr  = regexp.MustCompile(`(?i)article\s+(\d+[a-z]?)`)
	sectionHeadingExpr = regexp.MustCompile(`(?i)^(chapter|section|title|part)\s+([ivxlcdm]+|\d+)\b`)
	// A section line in a paragraph is the label alone or followed by a
	// capitalised title without sentence punctuation.
	sectionLineExpr = regexp.MustCompile(`^(?i:chapter|section|title|part)\s+(?i:[ivxlcdm]+|\d+)\.?(?:(?:\s*[-\x{2013}\x{2014}:]\s*|\s+)\p{Lu}[^.;]*)?$`)
	whitespaceExpr  = regexp.MustCompile(`[\s\x{00a0}]+`)
)

// ProvisionExtractor pulls numbered articles out of regulation markup.
// It first scans block headings; when that yields nothing it falls back to
// elements whose class mentions "article".
type ProvisionExtractor struct {
	logger *slog.Logger
}

var _ ports.ProvisionExtractor = (*ProvisionExtractor)(nil)

// NewProvisionExtractor builds an extractor; log may be nil.
func NewProvisionExtractor(log *slog.Logger) *ProvisionExtractor {
	return &ProvisionExtractor{logger: log}
}

// Extract returns provisions in document order. An empty result is not an error.
func (e *ProvisionExtractor) Extract(markup, regulationID string) ([]domain.Provision, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	provisions := scanHeadings(doc, regulationID)
	if len(provisions) > 0 {
		e.debug("heading scan matched", "regulation", regulationID, "provisions", len(provisions))
		return provisions, nil
	}

	provisions = scanArticleClasses(doc, regulationID)
	e.debug("class fallback matched", "regulation", regulationID, "provisions", len(provisions))
	return provisions, nil
}

func scanHeadings(doc *goquery.Document, regulationID string) []domain.Provision {
	var (
		provisions     []domain.Provision
		seen           = map[string]struct{}{}
		currentSection string
	)

	doc.Find(blockSelector).Each(func(_ int, node *goquery.Selection) {
		text := normalizeText(node.Text())
		if text == "" {
			return
		}
		if isSectionHeading(node, text) {
			currentSection = text
			return
		}

		match := articleHeadingExpr.FindStringSubmatch(text)
		if match == nil {
			return
		}

		body := collectBody(node)
		if body == "" {
			return
		}

		id := domain.ProvisionID(regulationID, match[1])
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}

		provisions = append(provisions, domain.Provision{
			ID:           id,
			RegulationID: regulationID,
			Number:       match[1],
			SectionTitle: currentSection,
			FullText:     body,
		})
	})

	return provisions
}

// collectBody gathers sibling text after an article heading until the next
// heading, bounded by maxBodySiblings.
func collectBody(heading *goquery.Selection) string {
	var parts []string

	sibling := heading.Next()
	for i := 0; i < maxBodySiblings && sibling.Length() > 0; i++ {
		text := normalizeText(sibling.Text())
		if isHeading(sibling, text) || containsArticleHeading(sibling) {
			break
		}
		if text != "" {
			parts = append(parts, text)
		}
		sibling = sibling.Next()
	}

	return strings.Join(parts, " ")
}

func isHeading(node *goquery.Selection, text string) bool {
	return articleHeadingExpr.MatchString(text) || isSectionHeading(node, text)
}

// isSectionHeading accepts a chapter, section, title or part label in a
// heading element, or in a short standalone line. Body sentences that merely
// start with "Section 2 of ..." do not qualify.
func isSectionHeading(node *goquery.Selection, text string) bool {
	if isHeadingElement(node) {
		return sectionHeadingExpr.MatchString(text)
	}
	return utf8.RuneCountInString(text) <= maxSectionLineLen && sectionLineExpr.MatchString(text)
}

func isHeadingElement(node *goquery.Selection) bool {
	switch goquery.NodeName(node) {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

func containsArticleHeading(sel *goquery.Selection) bool {
	return sel.Find(blockSelector).FilterFunction(func(_ int, node *goquery.Selection) bool {
		return articleHeadingExpr.MatchString(normalizeText(node.Text()))
	}).Length() > 0
}

func scanArticleClasses(doc *goquery.Document, regulationID string) []domain.Provision {
	var (
		provisions []domain.Provision
		seen       = map[string]struct{}{}
	)

	doc.Find("[class]").FilterFunction(hasArticleClass).Each(func(_ int, el *goquery.Selection) {
		// Containers of several article elements are skipped; their children are visited on their own.
		if el.Find("[class]").FilterFunction(hasArticleClass).Length() > 0 {
			return
		}

		text := normalizeText(el.Text())
		match := articleInlineExpr.FindStringSubmatch(text)
		if match == nil {
			return
		}

		id := domain.ProvisionID(regulationID, match[1])
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}

		provisions = append(provisions, domain.Provision{
			ID:           id,
			RegulationID: regulationID,
			Number:       match[1],
			FullText:     text,
		})
	})

	return provisions
}

func hasArticleClass(_ int, sel *goquery.Selection) bool {
	class, _ := sel.Attr("class")
	return strings.Contains(strings.ToLower(class), "article")
}

func normalizeText(s string) string {
	return strings.TrimSpace(whitespaceExpr.ReplaceAllString(s, " "))
}

func (e *ProvisionExtractor) debug(msg string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

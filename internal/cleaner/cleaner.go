package cleaner

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	htmlTagRe    = regexp.MustCompile(`(?i)<\s*(html|body|div|p|li|ul|ol|br|h[1-6]|span|section|article|strong|em)\b[^>]*>`)
	anyTagRe     = regexp.MustCompile("<[^>]*>")
	spaceRe      = regexp.MustCompile(`[ \t\f\v]+`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

type Cleaner struct{}

func NewCleaner() *Cleaner {
	return &Cleaner{}
}

// LooksLikeHTML reports whether text contains common block or inline HTML tags,
// as happens when a job posting is copied from a web page source.
func (c *Cleaner) LooksLikeHTML(text string) bool {
	return htmlTagRe.MatchString(text)
}

// CleanHTML turns an HTML job posting into plain text paragraphs.
func (c *Cleaner) CleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return stripTags(html)
	}
	doc.Find("script, style, nav, header, footer, iframe, noscript").Remove()
	doc.Find(".menu, .navigation, .social, .banner, .ads, .cookie, .popup").Remove()

	var textBlocks []string
	doc.Find("p, li, h1, h2, h3, h4, h5, h6").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if len(text) > 0 {
			textBlocks = append(textBlocks, cleanText(text))
		}
	})
	if len(textBlocks) > 0 {
		return strings.Join(textBlocks, "\n\n")
	}

	bodyText := strings.TrimSpace(doc.Find("body").Text())
	if len(bodyText) > 0 {
		return cleanText(bodyText)
	}

	return cleanText(doc.Text())
}

// CleanLlmResponse removes a surrounding markdown code fence and any language
// tag on it. Text without fences is only trimmed.
func (c *Cleaner) CleanLlmResponse(response string) string {
	trimmed := strings.TrimSpace(response)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	body := strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(body, '\n'); nl != -1 && !strings.ContainsAny(body[:nl], " \t") {
		body = body[nl+1:]
	}
	if end := strings.LastIndex(body, "```"); end != -1 {
		body = body[:end]
	}

	return strings.TrimSpace(body)
}

// WordCount counts whitespace separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

func stripTags(html string) string {
	return cleanText(anyTagRe.ReplaceAllString(html, " "))
}

func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = spaceRe.ReplaceAllString(text, " ")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Package format renders Stack Exchange API payloads as the markdown
// text returned to MCP callers. Question and answer bodies arrive as
// HTML fragments and are converted to readable markdown first.
package format

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/HendryAvila/stackmcp/internal/stackexchange"
)

// DefaultMaxContentLength caps rendered body text. Oversized bodies are
// cut with a visible notice rather than silently.
const DefaultMaxContentLength = 50000

const truncationNotice = "\n\n... [content truncated]"

var (
	reCodeBlock = regexp.MustCompile(`(?s)<pre[^>]*>\s*<code[^>]*>(.*?)</code>\s*</pre>`)
	reCode      = regexp.MustCompile(`(?s)<code[^>]*>(.*?)</code>`)
	reBold      = regexp.MustCompile(`(?s)<(?:b|strong)[^>]*>(.*?)</(?:b|strong)>`)
	reItalic    = regexp.MustCompile(`(?s)<(?:i|em)[^>]*>(.*?)</(?:i|em)>`)
	reLink      = regexp.MustCompile(`(?s)<a[^>]*href="([^"]*)"[^>]*>(.*?)</a>`)
	reBreak     = regexp.MustCompile(`<br\s*/?>`)
	reParaClose = regexp.MustCompile(`</p>\s*`)
	reListItem  = regexp.MustCompile(`(?s)<li[^>]*>(.*?)</li>`)
	reBlock     = regexp.MustCompile(`(?s)<blockquote[^>]*>(.*?)</blockquote>`)
	reHeading   = regexp.MustCompile(`(?s)<h[1-6][^>]*>(.*?)</h[1-6]>`)
	reTag       = regexp.MustCompile(`(?s)<[^>]+>`)
	reBlank     = regexp.MustCompile(`\n{3,}`)
)

// HTMLToMarkdown converts the HTML fragments the API ships in question
// and answer bodies to markdown. The conversion is lossy on purpose:
// anything beyond the common tags is stripped to its text content.
func HTMLToMarkdown(body string) string {
	if body == "" {
		return ""
	}
	out := body
	out = reCodeBlock.ReplaceAllString(out, "\n```\n$1\n```\n")
	out = reCode.ReplaceAllString(out, "`$1`")
	out = reBold.ReplaceAllString(out, "**$1**")
	out = reItalic.ReplaceAllString(out, "*$1*")
	out = reLink.ReplaceAllString(out, "[$2]($1)")
	out = reHeading.ReplaceAllString(out, "\n### $1\n")
	out = reBlock.ReplaceAllString(out, "\n> $1\n")
	out = reListItem.ReplaceAllString(out, "\n- $1")
	out = reBreak.ReplaceAllString(out, "\n")
	out = reParaClose.ReplaceAllString(out, "\n\n")
	out = reTag.ReplaceAllString(out, "")
	out = html.UnescapeString(out)
	out = reBlank.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// Truncate cuts s at max runes and appends a notice. max <= 0 means
// the default limit.
func Truncate(s string, max int) string {
	if max <= 0 {
		max = DefaultMaxContentLength
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + truncationNotice
}

func scoreEmoji(score int) string {
	switch {
	case score >= 10:
		return "🔥"
	case score >= 5:
		return "👍"
	default:
		return "➡️"
	}
}

func answeredEmoji(answered bool) string {
	if answered {
		return "✅"
	}
	return "❓"
}

func formatDate(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02")
}

// bodyText renders an HTML body, either converted to markdown or
// passed through as-is when the caller opted out of conversion.
func bodyText(body string, convert bool) string {
	if convert {
		return HTMLToMarkdown(body)
	}
	return strings.TrimSpace(body)
}

// SearchResults renders one page of search hits as a compact markdown
// digest, with a pagination footer when the API reported more results
// beyond this page.
func SearchResults(result *stackexchange.SearchPage, page, pageSize, maxLen int) string {
	if result == nil || len(result.Questions) == 0 {
		return "No questions found."
	}
	found := result.Total
	if found == 0 {
		found = len(result.Questions)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d question(s):\n\n", found))
	for i, q := range result.Questions {
		sb.WriteString(fmt.Sprintf("## %d. %s %s %s\n", i+1, scoreEmoji(q.Score), answeredEmoji(q.IsAnswered), q.Title))
		sb.WriteString(fmt.Sprintf("- **Score:** %d | **Answers:** %d | **Views:** %d\n", q.Score, q.AnswerCount, q.ViewCount))
		sb.WriteString(fmt.Sprintf("- **Tags:** %s\n", strings.Join(q.Tags, ", ")))
		sb.WriteString(fmt.Sprintf("- **Asked:** %s by %s\n", formatDate(q.CreationDate), q.Owner.DisplayName))
		sb.WriteString(fmt.Sprintf("- **Link:** %s\n", q.Link))
		sb.WriteString(fmt.Sprintf("- **Question ID:** %d\n\n", q.QuestionID))
	}
	if remaining := result.Total - page*pageSize; result.Total > pageSize && remaining > 0 {
		sb.WriteString(fmt.Sprintf("💡 *Showing page %d of results. %d more question(s) available.*\n", page, remaining))
	}
	return Truncate(strings.TrimRight(sb.String(), "\n"), maxLen)
}

func questionHeader(sb *strings.Builder, q stackexchange.Question) {
	sb.WriteString(fmt.Sprintf("# %s %s %s\n\n", scoreEmoji(q.Score), answeredEmoji(q.IsAnswered), q.Title))
	sb.WriteString(fmt.Sprintf("**Question ID:** %d\n", q.QuestionID))
	sb.WriteString(fmt.Sprintf("**Score:** %d | **Views:** %d | **Answers:** %d\n", q.Score, q.ViewCount, q.AnswerCount))
	sb.WriteString(fmt.Sprintf("**Tags:** %s\n", strings.Join(q.Tags, ", ")))
	sb.WriteString(fmt.Sprintf("**Asked:** %s by %s\n", formatDate(q.CreationDate), q.Owner.DisplayName))
	sb.WriteString(fmt.Sprintf("**Link:** %s\n\n", q.Link))
}

// answerSummaryCap limits the score-only answer digest QuestionDetail
// appends below the question body.
const answerSummaryCap = 3

// QuestionDetail renders a single question as full markdown. Answers,
// when present, appear as a short score digest; use QuestionThread for
// full answer bodies.
func QuestionDetail(qa *stackexchange.QuestionWithAnswers, convertMarkdown bool, maxLen int) string {
	q := qa.Question
	var sb strings.Builder
	questionHeader(&sb, q)

	if q.Body != "" {
		sb.WriteString("## Question\n\n")
		sb.WriteString(bodyText(q.Body, convertMarkdown))
		sb.WriteString("\n")
	}

	if len(qa.Answers) > 0 {
		sb.WriteString(fmt.Sprintf("\n## Answers (%d total)\n", len(qa.Answers)))
		for i, a := range qa.Answers {
			if i == answerSummaryCap {
				sb.WriteString(fmt.Sprintf("\n*... and %d more answer(s)*\n", len(qa.Answers)-answerSummaryCap))
				break
			}
			accepted := ""
			if a.IsAccepted {
				accepted = " ✅ Accepted"
			}
			sb.WriteString(fmt.Sprintf("\n### Answer %d%s\n**Score:** %s %d\n", i+1, accepted, scoreEmoji(a.Score), a.Score))
		}
		sb.WriteString("\n💡 *Use get_question_with_answers to see full answer content.*\n")
	}
	return Truncate(strings.TrimRight(sb.String(), "\n"), maxLen)
}

// QuestionThread renders a question together with full answer bodies,
// highest voted first, capped at maxAnswers.
func QuestionThread(qa *stackexchange.QuestionWithAnswers, maxAnswers int, convertMarkdown bool, maxLen int) string {
	q := qa.Question
	var sb strings.Builder
	questionHeader(&sb, q)

	if q.Body != "" {
		sb.WriteString("## Question\n\n")
		sb.WriteString(bodyText(q.Body, convertMarkdown))
		sb.WriteString("\n")
	}

	if len(qa.Answers) > 0 {
		sb.WriteString(fmt.Sprintf("\n## Answers (%d)\n", len(qa.Answers)))
		shown := qa.Answers
		if maxAnswers > 0 && len(shown) > maxAnswers {
			shown = shown[:maxAnswers]
		}
		for i, a := range shown {
			accepted := ""
			if a.IsAccepted {
				accepted = " ✅ Accepted"
			}
			sb.WriteString(fmt.Sprintf("\n### Answer %d %s (Score: %d)%s\n\n", i+1, scoreEmoji(a.Score), a.Score, accepted))
			sb.WriteString(fmt.Sprintf("*By %s on %s*\n\n", a.Owner.DisplayName, formatDate(a.CreationDate)))
			sb.WriteString(bodyText(a.Body, convertMarkdown))
			sb.WriteString("\n")
		}
		if hidden := len(qa.Answers) - len(shown); hidden > 0 {
			sb.WriteString(fmt.Sprintf("\n*Note: %d more answer(s) available. Use a larger max_answers value to see them.*\n", hidden))
		}
	}
	return Truncate(strings.TrimRight(sb.String(), "\n"), maxLen)
}

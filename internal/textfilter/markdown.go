package textfilter

import (
	"regexp"
	"strings"
)

type rule struct {
	name    string
	pattern *regexp.Regexp
	repl    string
}

// Every replacement is shorter than its match, so repeating the table until
// nothing changes always terminates.
var markdownRules = []rule{
	{name: "code_fence", pattern: regexp.MustCompile("(?m)^[ \t]*```[^\n]*\n?"), repl: ""},
	{name: "horizontal_rule", pattern: regexp.MustCompile(`(?m)^[ \t]*([-*_][ \t]*){3,}$`), repl: ""},
	{name: "heading", pattern: regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]+`), repl: ""},
	{name: "blockquote", pattern: regexp.MustCompile(`(?m)^[ \t]{0,3}(>[ \t]?)+`), repl: ""},
	{name: "bullet", pattern: regexp.MustCompile(`(?m)^([ \t]*)[-*+][ \t]+`), repl: "$1"},
	{name: "image", pattern: regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`), repl: "$1"},
	{name: "link", pattern: regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`), repl: "$1"},
	{name: "bold_star", pattern: regexp.MustCompile(`\*\*(.+?)\*\*`), repl: "$1"},
	{name: "bold_underscore", pattern: regexp.MustCompile(`__(.+?)__`), repl: "$1"},
	{name: "strikethrough", pattern: regexp.MustCompile(`~~(.+?)~~`), repl: "$1"},
	{name: "italic_star", pattern: regexp.MustCompile(`\*(\S(?:[^*\n]*\S)?)\*`), repl: "$1"},
	{name: "italic_underscore", pattern: regexp.MustCompile(`(^|[^\w])_([^_\n]+)_([^\w]|$)`), repl: "$1$2$3"},
	{name: "inline_code", pattern: regexp.MustCompile("`([^`\n]+)`"), repl: "$1"},
	{name: "trailing_space", pattern: regexp.MustCompile(`(?m)[ \t]+$`), repl: ""},
	{name: "blank_lines", pattern: regexp.MustCompile(`\n{3,}`), repl: "\n\n"},
}

// StripMarkdown turns model output formatted as markdown into plain text.
// StripMarkdown(StripMarkdown(s)) == StripMarkdown(s).
func StripMarkdown(s string) string {
	out := strings.TrimSpace(s)
	for {
		next := out
		for _, r := range markdownRules {
			next = r.pattern.ReplaceAllString(next, r.repl)
		}
		next = strings.TrimSpace(next)
		if next == out {
			return out
		}
		out = next
	}
}

package notify

import (
	"fmt"
	"strings"

	"github.com/postwatch/postwatch/internal/model"
)

const maxExcerptLen = 200

// FormatMessage renders the chat message body for a matched post. The URL
// template is plain text with {account} and {id} placeholders; unknown text
// passes through untouched, so a malformed template cannot corrupt the
// message.
func FormatMessage(item model.PendingPost, urlTemplate string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New post from @%s\n\n", item.Post.Account)
	b.WriteString(excerpt(item.Post.Text))
	if item.Summary != "" {
		b.WriteString("\n\n")
		b.WriteString(item.Summary)
	}
	if urlTemplate != "" {
		b.WriteString("\n")
		b.WriteString(strings.NewReplacer(
			"{account}", item.Post.Account,
			"{id}", item.Post.ID,
		).Replace(urlTemplate))
	}
	return b.String()
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= maxExcerptLen {
		return text
	}
	return string(runes[:maxExcerptLen]) + "..."
}

package notify

import (
	"fmt"
	"strings"
)

// Headline is one item of a headline announcement.
type Headline struct {
	ID     string   `json:"id,omitempty"`
	Title  string   `json:"title"`
	URL    string   `json:"url,omitempty"`
	Source string   `json:"source,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

// FormatHeadlines renders a plain-text announcement listing headlines.
func FormatHeadlines(title string, headlines []Headline) Message {
	var sb strings.Builder
	for i, h := range headlines {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, h.Title)
		if h.URL != "" {
			if h.Source != "" {
				fmt.Fprintf(&sb, "%s | %s\n", h.URL, h.Source)
			} else {
				sb.WriteString(h.URL + "\n")
			}
		}
		if len(h.Tags) > 0 {
			sb.WriteString("#" + strings.Join(h.Tags, " #") + "\n")
		}
		sb.WriteString("\n")
	}

	msg := Message{
		Title:  title,
		Body:   strings.TrimRight(sb.String(), "\n"),
		Format: "plain",
		Items:  headlines,
	}
	if len(headlines) == 1 {
		msg.URL = headlines[0].URL
	}
	return msg
}

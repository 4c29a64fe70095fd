package scheduler

import (
	"context"
	"fmt"

	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/sources"
	"github.com/RobinCoderZhao/newsdesk/pkg/notify"
)

// NotifyAnnouncer announces published articles on every channel registered
// with a notify.Dispatcher.
type NotifyAnnouncer struct {
	dispatcher *notify.Dispatcher
}

// NewNotifyAnnouncer creates an announcer over d.
func NewNotifyAnnouncer(d *notify.Dispatcher) *NotifyAnnouncer {
	return &NotifyAnnouncer{dispatcher: d}
}

func (n *NotifyAnnouncer) Announce(ctx context.Context, published []sources.Article) error {
	if len(published) == 0 || n.dispatcher.Len() == 0 {
		return nil
	}

	headlines := make([]notify.Headline, 0, len(published))
	for _, a := range published {
		headlines = append(headlines, notify.Headline{
			ID:     a.ID,
			Title:  a.Title,
			URL:    a.URL,
			Source: a.Source,
			Tags:   a.Tags,
		})
	}

	title := "New deepfake story published"
	if len(published) > 1 {
		title = fmt.Sprintf("%d new deepfake stories published", len(published))
	}
	return n.dispatcher.SendAll(ctx, notify.FormatHeadlines(title, headlines))
}

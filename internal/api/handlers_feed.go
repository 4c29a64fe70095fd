package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/feeds"

	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/sources"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/store"
	"github.com/RobinCoderZhao/newsdesk/pkg/htmltext"
)

const feedSize = 50

func (s *Server) handleFeed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := s.articles.Query(r.Context(), store.QueryOptions{
			PublishedOnly: true,
			Limit:         feedSize,
			SortField:     store.SortPublishDate,
			SortOrder:     "desc",
		})
		if err != nil {
			s.logger.Error("feed query failed", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to build feed")
			return
		}

		rss, err := s.renderFeed(page.Items)
		if err != nil {
			s.logger.Error("feed render failed", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to build feed")
			return
		}

		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(rss))
	}
}

func (s *Server) renderFeed(articles []sources.Article) (string, error) {
	base := strings.TrimRight(s.opts.PublicURL, "/")
	feed := &feeds.Feed{
		Title:       "Deepfake News",
		Link:        &feeds.Link{Href: base + "/feed.xml"},
		Description: "Curated news about deepfakes and synthetic media",
		Created:     s.now(),
	}

	feed.Items = make([]*feeds.Item, 0, len(articles))
	for _, a := range articles {
		item := &feeds.Item{
			Id:          base + "/api/articles/" + a.ID,
			Title:       a.Title,
			Link:        &feeds.Link{Href: a.URL},
			Description: htmltext.Truncate(a.Description, 500),
			Created:     a.PublishedAt,
		}
		if a.PublishDate != nil {
			item.Created = *a.PublishDate
		}
		if a.Author != "" {
			item.Author = &feeds.Author{Name: a.Author}
		}
		if a.URLToImage != "" {
			item.Enclosure = &feeds.Enclosure{Url: a.URLToImage, Type: "image/jpeg", Length: "0"}
		}
		feed.Items = append(feed.Items, item)
	}

	return feed.ToRss()
}

package sources

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/RobinCoderZhao/newsdesk/pkg/htmltext"
)

// contentLimit bounds stored body text; the Guardian returns full articles.
const contentLimit = 4000

// GuardianSource searches the Guardian Open Platform content API.
type GuardianSource struct {
	opts  Options
	fetch *fetcher
}

// NewGuardianSource creates a Guardian client.
func NewGuardianSource(opts Options) *GuardianSource {
	opts = opts.withDefaults("https://content.guardianapis.com")
	return &GuardianSource{opts: opts, fetch: newFetcher("guardian", opts)}
}

func (g *GuardianSource) Name() string { return "guardian" }

type guardianResponse struct {
	Response struct {
		Status  string `json:"status"`
		Results []struct {
			WebURL             string    `json:"webUrl"`
			WebTitle           string    `json:"webTitle"`
			WebPublicationDate time.Time `json:"webPublicationDate"`
			Fields             struct {
				TrailText string `json:"trailText"`
				BodyText  string `json:"bodyText"`
				Thumbnail string `json:"thumbnail"`
				Byline    string `json:"byline"`
			} `json:"fields"`
		} `json:"results"`
	} `json:"response"`
}

func (g *GuardianSource) Search(ctx context.Context, keywords []string) ([]Article, error) {
	if err := requireKey(g.Name(), g.opts.APIKey); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", orQuery(keywords))
	q.Set("lang", g.opts.Language)
	q.Set("page-size", strconv.Itoa(g.opts.PageSize))
	q.Set("order-by", "newest")
	q.Set("show-fields", "trailText,bodyText,thumbnail,byline")
	q.Set("api-key", g.opts.APIKey)

	var resp guardianResponse
	if err := g.fetch.getJSON(ctx, g.opts.BaseURL+"/search?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	articles := make([]Article, 0, len(resp.Response.Results))
	for _, r := range resp.Response.Results {
		articles = append(articles, Article{
			URL:         r.WebURL,
			Author:      r.Fields.Byline,
			Title:       r.WebTitle,
			Description: r.Fields.TrailText,
			Content:     htmltext.Truncate(r.Fields.BodyText, contentLimit),
			URLToImage:  r.Fields.Thumbnail,
			PublishedAt: r.WebPublicationDate,
		})
	}
	return finalize(g.Name(), articles), nil
}

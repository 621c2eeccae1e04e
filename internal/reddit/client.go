package reddit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reddwatch/reddwatch/pkg/config"
	"github.com/reddwatch/reddwatch/pkg/logging"
	"github.com/reddwatch/reddwatch/pkg/telemetry"
)

// Client talks to the reddit API. Every outbound request waits on the rate
// limiter, carries the descriptive user agent, and is authenticated with the
// token provider's current bearer token.
type Client struct {
	httpClient *http.Client
	endpoint   string
	limiter    RateLimiter
	auth       TokenProvider
	userAgent  string
	logger     *zap.Logger
}

// New creates a reddit API client
func New(cfg *config.RedditConfig, limiter RateLimiter, auth TokenProvider) (*Client, error) {
	if cfg.QueryEndpoint == "" {
		return nil, fmt.Errorf("reddit_query_endpoint is required")
	}

	client := &Client{
		httpClient: &http.Client{
			Timeout: cfg.ReadTimeout,
			// Redirects are a protocol failure for this API, not navigation
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		endpoint:  strings.TrimRight(cfg.QueryEndpoint, "/"),
		limiter:   limiter,
		auth:      auth,
		userAgent: cfg.UserAgent,
		logger:    logging.GetLogger().With(zap.String("component", "reddit-client")),
	}

	client.logger.Info("Reddit client initialized", zap.String("endpoint", cfg.QueryEndpoint))

	return client, nil
}

// StoriesForCommunities pages through a listing scoped to the given
// communities and returns up to limit unique stories
func (c *Client) StoriesForCommunities(ctx context.Context, communities []string, style SortStyle, timeRange TimeRange, limit int) ([]*Story, error) {
	ctx, span := telemetry.StartSpan(ctx, "reddit.stories_for_communities")
	defer span.End()

	if len(communities) == 0 {
		return nil, fmt.Errorf("no communities given for listing request")
	}

	names := append([]string(nil), communities...)
	sort.Strings(names)
	path := "/r/" + strings.Join(names, "+") + "/" + string(style) + ".json"
	query := url.Values{"t": {string(timeRange)}}

	return c.paginate(ctx, "listing", path, query, limit)
}

// FrontPageStories pages through the unscoped front-page listing
func (c *Client) FrontPageStories(ctx context.Context, limit int) ([]*Story, error) {
	ctx, span := telemetry.StartSpan(ctx, "reddit.front_page_stories")
	defer span.End()

	return c.paginate(ctx, "front_page", "/.json", url.Values{}, limit)
}

// DefaultFrontPageCommunities samples a few pages of the front page and
// collects the distinct community names seen there. A heuristic, not an
// authoritative list: the multiplier trades requests for coverage.
func (c *Client) DefaultFrontPageCommunities(ctx context.Context) (map[string]struct{}, error) {
	ctx, span := telemetry.StartSpan(ctx, "reddit.default_front_page_communities")
	defer span.End()

	stories, err := c.FrontPageStories(ctx, 3*MaxItemsPerListingPage)
	if err != nil {
		return nil, err
	}

	communities := make(map[string]struct{})
	for _, story := range stories {
		communities[story.Subreddit] = struct{}{}
	}
	return communities, nil
}

// StoriesByID fetches the latest data for up to MaxItemsPerListingPage
// stories in one bulk call. The result map holds only ids the source still
// returned; missing ids mean the story is gone or hidden upstream.
func (c *Client) StoriesByID(ctx context.Context, shortIDs []string) (map[string]*Story, error) {
	ctx, span := telemetry.StartSpan(ctx, "reddit.stories_by_id")
	defer span.End()

	if len(shortIDs) == 0 {
		return nil, fmt.Errorf("empty id set passed to StoriesByID")
	}
	if len(shortIDs) > MaxItemsPerListingPage {
		return nil, fmt.Errorf("cannot request more than %d stories by id at a time (got %d)", MaxItemsPerListingPage, len(shortIDs))
	}

	fullIDs := make([]string, 0, len(shortIDs))
	for _, id := range shortIDs {
		fullIDs = append(fullIDs, kindStory+"_"+id)
	}

	query := url.Values{"limit": {strconv.Itoa(MaxItemsPerListingPage)}}
	body, err := c.get(ctx, "by_id", "/by_id/"+strings.Join(fullIDs, ",")+".json", query)
	if err != nil {
		return nil, err
	}

	listing, err := decodeStoryListing("by_id", body)
	if err != nil {
		return nil, err
	}

	stories := make(map[string]*Story, len(listing.Stories))
	for _, story := range listing.Stories {
		stories[story.ID] = story
	}
	return stories, nil
}

// CommunityByName fetches the about page of a single community. Returns a
// ForbiddenError when the community has gone private.
func (c *Client) CommunityByName(ctx context.Context, name string) (*Community, error) {
	ctx, span := telemetry.StartSpan(ctx, "reddit.community_by_name")
	defer span.End()

	body, err := c.get(ctx, "about", "/r/"+name+"/about.json", url.Values{})
	if err != nil {
		return nil, err
	}
	return decodeCommunity("about", body)
}

// paginate walks the after-cursor until the limit is reached, a page comes
// back empty, or the unique count stops growing (unstable cursors can repeat
// pages forever; the stagnation guard fails early instead)
func (c *Client) paginate(ctx context.Context, op, path string, query url.Values, limit int) ([]*Story, error) {
	stories := make([]*Story, 0, limit)
	seen := make(map[string]struct{}, limit)
	after := ""
	lastCount := 0

	for len(stories) < limit {
		page := url.Values{}
		for key, values := range query {
			page[key] = values
		}
		page.Set("limit", strconv.Itoa(MaxItemsPerListingPage))
		page.Set("after", after)

		body, err := c.get(ctx, op, path, page)
		if err != nil {
			return nil, err
		}

		listing, err := decodeStoryListing(op, body)
		if err != nil {
			return nil, err
		}

		if len(listing.Stories) == 0 {
			break // no more listing
		}

		for _, story := range listing.Stories {
			if len(stories) >= limit {
				break
			}
			if _, ok := seen[story.ID]; ok {
				continue
			}
			seen[story.ID] = struct{}{}
			stories = append(stories, story)
		}

		if len(stories) == lastCount {
			break // cursor stopped producing new stories
		}
		lastCount = len(stories)
		after = listing.After
	}

	return stories, nil
}

// get performs one rate-limited, authenticated GET and returns the body
func (c *Client) get(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	if wait := c.limiter.Reserve(); wait > 0 {
		c.logger.Debug("Rate limited before request", zap.String("op", op), zap.Duration("wait", wait))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &ClientError{Op: op, Err: ctx.Err()}
		case <-timer.C:
		}
	}

	requestURL := c.endpoint + path
	if encoded := query.Encode(); encoded != "" {
		requestURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, &ClientError{Op: op, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if token := c.auth.Token(); token != "" {
		req.Header.Set("Authorization", "bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ClientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return nil, &ForbiddenError{Op: op}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ClientError{Op: op, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, &ClientError{Op: op, Err: err}
	}
	return body, nil
}

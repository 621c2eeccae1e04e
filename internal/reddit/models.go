package reddit

import (
	"encoding/json"
	"math"
	"time"
)

// MaxItemsPerListingPage is the page size cap the reddit API enforces on
// listing and by-id requests
const MaxItemsPerListingPage = 100

// Thing kind discriminators used by the reddit wire format
const (
	kindListing   = "Listing"
	kindStory     = "t3"
	kindCommunity = "t5"
)

// SortStyle selects the ordering of a listing request
type SortStyle string

// Listing sort styles
const (
	SortHot           SortStyle = "hot"
	SortNew           SortStyle = "new"
	SortTop           SortStyle = "top"
	SortControversial SortStyle = "controversial"
)

// TimeRange filters /top and /controversial listings; other sorts ignore it
type TimeRange string

// Listing time ranges
const (
	RangeHour  TimeRange = "hour"
	RangeDay   TimeRange = "day"
	RangeWeek  TimeRange = "week"
	RangeMonth TimeRange = "month"
	RangeYear  TimeRange = "year"
	RangeAll   TimeRange = "all"
)

// Story is the wire representation of a submitted post
type Story struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	CreatedUTC    float64 `json:"created_utc"`
	Domain        string  `json:"domain"`
	IsSelf        bool    `json:"is_self"`
	NumComments   int     `json:"num_comments"`
	Gilded        int     `json:"gilded"`
	Score         int     `json:"score"`
	Over18        bool    `json:"over_18"`
	Permalink     string  `json:"permalink"`
	Selftext      string  `json:"selftext"`
	Subreddit     string  `json:"subreddit"`
	Thumbnail     string  `json:"thumbnail"`
	URL           string  `json:"url"`
	Distinguished string  `json:"distinguished"`
	Stickied      bool    `json:"stickied"`
}

// CreatedAt converts the source epoch to a time
func (s *Story) CreatedAt() time.Time {
	return time.Unix(int64(s.CreatedUTC), 0).UTC()
}

// FullID returns the kind-prefixed id used by the by-id endpoint
func (s *Story) FullID() string {
	return kindStory + "_" + s.ID
}

// Hotness computes reddit's logarithmic-decay ranking score from the vote
// score and creation time.
// See http://www.outofscope.com/reddits-empire-no-longer-founded-on-a-flawed-algorithm/
func (s *Story) Hotness() float64 {
	score := float64(s.Score)
	order := math.Log10(math.Max(math.Abs(score), 1))

	var sign float64
	switch {
	case score > 0:
		sign = 1
	case score < 0:
		sign = -1
	}

	seconds := s.CreatedUTC - 1134028003

	return sign*order + seconds/45000.0
}

// Community is the wire representation of a discussion board's about page
type Community struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"display_name"`
	Title                string  `json:"title"`
	URL                  string  `json:"url"`
	Description          string  `json:"description"`
	PublicDescription    string  `json:"public_description"`
	SubmissionType       string  `json:"submission_type"`
	Subscribers          int64   `json:"subscribers"`
	ActiveUsers          int64   `json:"accounts_active"`
	CommentScoreHideMins int     `json:"comment_score_hide_mins"`
	CreatedUTC           float64 `json:"created_utc"`
}

// CreatedAt converts the source epoch to a time
func (c *Community) CreatedAt() time.Time {
	return time.Unix(int64(c.CreatedUTC), 0).UTC()
}

// thing is the generic kind/data envelope every reddit payload uses
type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// storyListing is one decoded page of a story listing
type storyListing struct {
	After   string
	Stories []*Story
}

// decodeStoryListing parses a listing envelope into stories, rejecting
// payloads whose kinds do not match the expected discriminators
func decodeStoryListing(op string, body []byte) (*storyListing, error) {
	var root thing
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, &ClientError{Op: op, Err: err}
	}
	if root.Kind != kindListing {
		return nil, &ClientError{Op: op, Err: errUnexpectedKind(root.Kind, kindListing)}
	}

	var data struct {
		After    string  `json:"after"`
		Children []thing `json:"children"`
	}
	if err := json.Unmarshal(root.Data, &data); err != nil {
		return nil, &ClientError{Op: op, Err: err}
	}

	listing := &storyListing{After: data.After, Stories: make([]*Story, 0, len(data.Children))}
	for _, child := range data.Children {
		if child.Kind != kindStory {
			return nil, &ClientError{Op: op, Err: errUnexpectedKind(child.Kind, kindStory)}
		}
		var story Story
		if err := json.Unmarshal(child.Data, &story); err != nil {
			return nil, &ClientError{Op: op, Err: err}
		}
		listing.Stories = append(listing.Stories, &story)
	}
	return listing, nil
}

// decodeCommunity parses a t5 thing envelope
func decodeCommunity(op string, body []byte) (*Community, error) {
	var root thing
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, &ClientError{Op: op, Err: err}
	}
	if root.Kind != kindCommunity {
		return nil, &ClientError{Op: op, Err: errUnexpectedKind(root.Kind, kindCommunity)}
	}
	var community Community
	if err := json.Unmarshal(root.Data, &community); err != nil {
		return nil, &ClientError{Op: op, Err: err}
	}
	return &community, nil
}

type kindError struct {
	got, want string
}

func (e *kindError) Error() string {
	return "unexpected thing kind " + e.got + ", want " + e.want
}

func errUnexpectedKind(got, want string) error {
	return &kindError{got: got, want: want}
}

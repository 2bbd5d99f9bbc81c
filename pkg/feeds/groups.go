package feeds

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/diralist-hq/diralist-harvester/internal/browser"
	"github.com/diralist-hq/diralist-harvester/internal/domain"
)

const FeedTypeGroups = "groups"

const groupsBaseURL = "https://www.facebook.com"

// Identity key fallbacks, tried in order against the item's raw markup.
var (
	postLinkIDRe  = regexp.MustCompile(`/posts/(\d+)`)
	topLevelIDRe  = regexp.MustCompile(`"top_level_post_id":"(\d+)"`)
	permalinkIDRe = regexp.MustCompile(`permalink/(\d+)`)
)

// groupsFeed harvests group feeds rendered as article elements.
type groupsFeed struct{}

// NewGroupsFeed returns the group-feed adapter.
func NewGroupsFeed() Feed { return &groupsFeed{} }

func (*groupsFeed) Type() string { return FeedTypeGroups }

func (*groupsFeed) SourceURL(sourceID string) string {
	return fmt.Sprintf("%s/groups/%s", groupsBaseURL, sourceID)
}

func (*groupsFeed) ItemSelector() string { return "div[role='article']" }

func (*groupsFeed) ExtractID(html string) string {
	for _, re := range []*regexp.Regexp{postLinkIDRe, topLevelIDRe, permalinkIDRe} {
		if m := re.FindStringSubmatch(html); m != nil {
			return m[1]
		}
	}
	return ""
}

// Expand clicks any visible "See more" toggles so truncated post text is
// present before extraction.
func (*groupsFeed) Expand(ctx context.Context, el browser.Element) error {
	buttons, err := el.Elements("div[role='button']")
	if err != nil {
		return err
	}
	for _, btn := range buttons {
		if err := ctx.Err(); err != nil {
			return err
		}
		label, err := btn.Text()
		if err != nil {
			continue
		}
		label = strings.TrimSpace(label)
		if label != "See more" && label != "ראה עוד" {
			continue
		}
		if visible, err := btn.Visible(); err != nil || !visible {
			continue
		}
		if err := btn.Click(); err != nil {
			return err
		}
	}
	return nil
}

// ExtractFields reads one post element: the visible text comes from the live
// element, everything else is parsed out of its inner HTML.
func (*groupsFeed) ExtractFields(ctx context.Context, el browser.Element) (domain.RawItem, error) {
	if err := ctx.Err(); err != nil {
		return domain.RawItem{}, err
	}

	text, err := el.Text()
	if err != nil {
		return domain.RawItem{}, fmt.Errorf("read item text: %w", err)
	}

	html, err := el.HTML()
	if err != nil {
		return domain.RawItem{}, fmt.Errorf("read item markup: %w", err)
	}

	item := domain.RawItem{Text: strings.TrimSpace(text)}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return item, fmt.Errorf("parse item markup: %w", err)
	}

	if link, ok := firstAttr(doc, "a[href*='/posts/']", "href"); ok {
		item.Link = absoluteURL(link)
		if label, ok := firstAttr(doc, "a[href*='/posts/']", "aria-label"); ok {
			item.Timestamp = strings.TrimSpace(label)
		}
	}

	item.AuthorName = firstText(doc,
		"a[role='link'] strong span",
		"a[aria-label] span",
	)

	if authorLink, ok := firstAttr(doc, "a[href*='/user/']", "href"); ok {
		item.AuthorLink = absoluteURL(authorLink)
	} else if authorLink, ok := firstAttr(doc, "a[href*='facebook.com/profile']", "href"); ok {
		item.AuthorLink = absoluteURL(authorLink)
	}

	return item, nil
}

// Valid rejects items without a resolved author: no reliable identity.
func (*groupsFeed) Valid(item domain.RawItem) bool {
	return strings.TrimSpace(item.AuthorName) != ""
}

func firstAttr(doc *goquery.Document, selector, attr string) (string, bool) {
	node := doc.Find(selector).First()
	if node.Length() == 0 {
		return "", false
	}
	val, ok := node.Attr(attr)
	val = strings.TrimSpace(val)
	return val, ok && val != ""
}

func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if text := strings.TrimSpace(node.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

func absoluteURL(href string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	return groupsBaseURL + href
}

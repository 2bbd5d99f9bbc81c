package feeds

import (
	"context"
	"strings"
	"testing"

	"github.com/diralist-hq/diralist-harvester/internal/browser"
	"github.com/diralist-hq/diralist-harvester/internal/domain"
)

type htmlElement struct {
	text    string
	html    string
	buttons []*htmlElement
	visible bool
	clicks  int
}

func (h *htmlElement) Text() (string, error)            { return h.text, nil }
func (h *htmlElement) HTML() (string, error)            { return h.html, nil }
func (h *htmlElement) Attribute(string) (string, error) { return "", nil }
func (h *htmlElement) Click() error {
	h.clicks++
	return nil
}
func (h *htmlElement) Visible() (bool, error) { return h.visible, nil }
func (h *htmlElement) Elements(string) ([]browser.Element, error) {
	out := make([]browser.Element, len(h.buttons))
	for i, b := range h.buttons {
		out[i] = b
	}
	return out, nil
}

func TestExtractIDFallbackChain(t *testing.T) {
	feed := NewGroupsFeed()

	cases := []struct {
		name string
		html string
		want string
	}{
		{
			name: "posts link",
			html: `<a href="/groups/123/posts/456789/">link</a>`,
			want: "456789",
		},
		{
			name: "top level post id",
			html: `<div data-ft='{"top_level_post_id":"987654"}'>x</div>`,
			want: "987654",
		},
		{
			name: "permalink",
			html: `<a href="/groups/123/permalink/111222/">link</a>`,
			want: "111222",
		},
		{
			name: "no id anywhere",
			html: `<div>just text</div>`,
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := feed.ExtractID(tc.html); got != tc.want {
				t.Fatalf("ExtractID = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtractIDPrefersPostsLink(t *testing.T) {
	feed := NewGroupsFeed()
	html := `<a href="/groups/1/posts/111/">x</a><div data-ft='{"top_level_post_id":"222"}'></div>`
	if got := feed.ExtractID(html); got != "111" {
		t.Fatalf("ExtractID = %q, want the posts link id", got)
	}
}

func TestExtractFieldsParsesItemMarkup(t *testing.T) {
	feed := NewGroupsFeed()
	el := &htmlElement{
		text: "  Spacious 3br near the beach  ",
		html: `
			<div role="article">
				<a role="link" href="/user/42/"><strong><span>Dana Levi</span></strong></a>
				<a href="/groups/1/posts/555/" aria-label="2 hours ago">·</a>
				<div>Spacious 3br near the beach</div>
			</div>`,
	}

	item, err := feed.ExtractFields(context.Background(), el)
	if err != nil {
		t.Fatalf("ExtractFields: %v", err)
	}
	if item.Text != "Spacious 3br near the beach" {
		t.Fatalf("Text = %q", item.Text)
	}
	if item.AuthorName != "Dana Levi" {
		t.Fatalf("AuthorName = %q", item.AuthorName)
	}
	if item.Link != "https://www.facebook.com/groups/1/posts/555/" {
		t.Fatalf("Link = %q", item.Link)
	}
	if item.Timestamp != "2 hours ago" {
		t.Fatalf("Timestamp = %q", item.Timestamp)
	}
	if item.AuthorLink != "https://www.facebook.com/user/42/" {
		t.Fatalf("AuthorLink = %q", item.AuthorLink)
	}
	if !feed.Valid(item) {
		t.Fatalf("item with author should be valid")
	}
}

func TestExtractFieldsWithoutAuthorIsInvalid(t *testing.T) {
	feed := NewGroupsFeed()
	el := &htmlElement{
		text: "orphan post",
		html: `<div role="article"><div>orphan post</div></div>`,
	}

	item, err := feed.ExtractFields(context.Background(), el)
	if err != nil {
		t.Fatalf("ExtractFields: %v", err)
	}
	if feed.Valid(item) {
		t.Fatalf("item without author must be invalid: %#v", item)
	}
}

func TestExpandClicksOnlyVisibleSeeMore(t *testing.T) {
	seeMore := &htmlElement{text: "See more", visible: true}
	hebrew := &htmlElement{text: "ראה עוד", visible: true}
	hidden := &htmlElement{text: "See more", visible: false}
	other := &htmlElement{text: "Like", visible: true}

	el := &htmlElement{buttons: []*htmlElement{seeMore, hebrew, hidden, other}}

	if err := NewGroupsFeed().Expand(context.Background(), el); err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if seeMore.clicks != 1 || hebrew.clicks != 1 {
		t.Fatalf("visible toggles not clicked: %d, %d", seeMore.clicks, hebrew.clicks)
	}
	if hidden.clicks != 0 || other.clicks != 0 {
		t.Fatalf("unexpected clicks: hidden=%d other=%d", hidden.clicks, other.clicks)
	}
}

func TestSourceURL(t *testing.T) {
	feed := NewGroupsFeed()
	got := feed.SourceURL("telaviv-apartments")
	if got != "https://www.facebook.com/groups/telaviv-apartments" {
		t.Fatalf("SourceURL = %q", got)
	}
}

func TestValidRequiresAuthor(t *testing.T) {
	feed := NewGroupsFeed()
	if feed.Valid(domain.RawItem{AuthorName: "   "}) {
		t.Fatalf("whitespace author must be invalid")
	}
	if !feed.Valid(domain.RawItem{AuthorName: "Dana"}) {
		t.Fatalf("named author must be valid")
	}
}

func TestAbsoluteURL(t *testing.T) {
	if got := absoluteURL("/user/1"); !strings.HasPrefix(got, "https://www.facebook.com/") {
		t.Fatalf("relative href not absolutized: %q", got)
	}
	if got := absoluteURL("https://elsewhere.example/x"); got != "https://elsewhere.example/x" {
		t.Fatalf("absolute href must pass through: %q", got)
	}
}

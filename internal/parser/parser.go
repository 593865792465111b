// Package parser reads forum markup into domain entries.
package parser

import (
	"errors"
	"fmt"
	"html"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"

	"limoni/internal/domain"
)

var (
	// ErrMissingEntryData is returned when an entry element lacks its id or author.
	ErrMissingEntryData = errors.New("missing required entry data")

	// ErrContentNotFound is returned when an entry element has no .content child.
	ErrContentNotFound = errors.New("content element not found")

	// ErrEntryNotFound is returned when no element on the page carries the requested id.
	ErrEntryNotFound = errors.New("entry element not found")
)

// Selectors for the forum markup.
const (
	entrySelector     = "#entry-item"
	entryListSelector = "ul#entry-item-list"
	topicSelector     = "h1#title"
	contentSelector   = ".content"
	dateSelector      = ".entry-date"
	avatarSelector    = ".avatar"
	favoriteSelector  = "div.topic-item"
)

// Parser extracts entries from forum pages.
type Parser struct {
	policy *bluemonday.Policy
	strict *bluemonday.Policy
	log    logrus.FieldLogger
	now    func() time.Time
}

// New returns a Parser with the entry content allow-list installed.
func New(logger logrus.FieldLogger) *Parser {
	return &Parser{
		policy: contentPolicy(),
		strict: bluemonday.StrictPolicy(),
		log:    logger.WithField("component", "parser"),
		now:    time.Now,
	}
}

// contentPolicy keeps inline formatting and links, nothing else.
func contentPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowStandardURLs()
	// Links keep the rel and target they came with.
	p.RequireNoFollowOnLinks(false)
	p.AddTargetBlankToFullyQualifiedLinks(false)
	p.AllowElements("a", "br", "strong", "em", "b", "i", "u", "p", "span")
	p.AllowAttrs("href", "target", "rel").OnElements("a")
	p.AllowAttrs("class").Globally()
	p.AllowNoAttrs().OnElements("span")
	return p
}

// Sanitize applies the entry content allow-list to an HTML fragment.
func (p *Parser) Sanitize(fragment string) string {
	return strings.TrimSpace(p.policy.Sanitize(fragment))
}

// StripHTML returns the plain text of an HTML fragment.
func (p *Parser) StripHTML(fragment string) string {
	return html.UnescapeString(p.strict.Sanitize(fragment))
}

// FindEntryElements returns every entry element on the page.
func FindEntryElements(doc *goquery.Document) *goquery.Selection {
	return doc.Find(entrySelector)
}

// FindEntryElement returns the entry element whose data-id equals entryID.
// The selection is empty when there is none.
func FindEntryElement(doc *goquery.Document, entryID string) *goquery.Selection {
	return FindEntryElements(doc).FilterFunction(func(_ int, s *goquery.Selection) bool {
		id, _ := s.Attr("data-id")
		return id == entryID
	}).First()
}

// ParseEntry reads a single entry element. pageURL is the address the
// document was loaded from and is used to resolve relative links.
func (p *Parser) ParseEntry(doc *goquery.Document, sel *goquery.Selection, pageURL string) (domain.Entry, error) {
	id := strings.TrimSpace(sel.AttrOr("data-id", ""))
	author := strings.TrimSpace(sel.AttrOr("data-author", ""))
	if id == "" || author == "" {
		return domain.Entry{}, ErrMissingEntryData
	}
	log := p.log.WithField("entry_id", id)

	content := sel.Find(contentSelector).First()
	if content.Length() == 0 {
		return domain.Entry{}, fmt.Errorf("entry %s: %w", id, ErrContentNotFound)
	}

	rawHTML, err := content.Html()
	if err != nil {
		return domain.Entry{}, fmt.Errorf("entry %s: render content: %w", id, err)
	}

	favorites, err := strconv.Atoi(strings.TrimSpace(sel.AttrOr("data-favorite-count", "0")))
	if err != nil {
		log.WithError(err).Debug("Unparseable favorite count, using 0")
		favorites = 0
	}

	avatar := ""
	if src, ok := sel.Find(avatarSelector).First().Attr("src"); ok {
		avatar = resolveURL(pageURL, src)
	}

	entry := domain.Entry{
		ID:            id,
		Author:        author,
		Content:       strings.TrimSpace(content.Text()),
		ContentHTML:   p.Sanitize(strings.TrimSpace(rawHTML)),
		Date:          strings.TrimSpace(sel.Find(dateSelector).First().Text()),
		FavoriteCount: favorites,
		AvatarURL:     avatar,
		ArchivedAt:    p.now().UnixMilli(),
		TopicURL:      pageURL,
	}

	topic := topicFor(doc, sel)
	if topic.Length() > 0 {
		entry.TopicTitle = strings.TrimSpace(topic.Text())
		if href, ok := topic.Find("a").First().Attr("href"); ok && href != "" {
			entry.TopicURL = resolveURL(pageURL, href)
		}
	}

	log.Debug("Parsed entry")
	return entry, nil
}

// topicFor finds the topic heading for an entry: the h1#title directly
// before its entry list, falling back to the page's first h1#title.
func topicFor(doc *goquery.Document, sel *goquery.Selection) *goquery.Selection {
	prev := sel.Closest(entryListSelector).Prev()
	if prev.Length() > 0 && prev.Is(topicSelector) {
		return prev
	}
	return doc.Find(topicSelector).First()
}

// ParseEntryByID locates and parses the entry with the given id.
func (p *Parser) ParseEntryByID(doc *goquery.Document, entryID, pageURL string) (domain.Entry, error) {
	sel := FindEntryElement(doc, entryID)
	if sel.Length() == 0 {
		return domain.Entry{}, fmt.Errorf("entry %s: %w", entryID, ErrEntryNotFound)
	}
	return p.ParseEntry(doc, sel, pageURL)
}

// ParseEntries parses every entry on the page, skipping the ones that fail.
func (p *Parser) ParseEntries(doc *goquery.Document, pageURL string) []domain.Entry {
	var entries []domain.Entry
	FindEntryElements(doc).Each(func(_ int, s *goquery.Selection) {
		e, err := p.ParseEntry(doc, s, pageURL)
		if err != nil {
			p.log.WithError(err).Warn("Skipping unparseable entry")
			return
		}
		entries = append(entries, e)
	})
	return entries
}

// ParseFavorites reads a user's favorites listing, where every item carries
// its own topic title and permalink.
func (p *Parser) ParseFavorites(doc *goquery.Document, pageURL string) []domain.Entry {
	var entries []domain.Entry
	doc.Find(favoriteSelector).Each(func(_ int, s *goquery.Selection) {
		permalink := s.Find("a.entry-date.permalink").First()
		href := permalink.AttrOr("href", "")
		id := entryIDFromPath(href)
		author := strings.TrimSpace(s.Find("a.entry-author").First().Text())
		content := s.Find("div.content").First()
		if id == "" || author == "" || content.Length() == 0 {
			p.log.WithField("href", href).Warn("Skipping incomplete favorite item")
			return
		}

		rawHTML, _ := content.Html()
		favorites, _ := strconv.Atoi(s.Find("li[data-favorite-count]").First().AttrOr("data-favorite-count", "0"))

		title := s.Find("#title").First()
		topicURL := ""
		if link, ok := title.Find("a").First().Attr("href"); ok {
			topicURL = resolveURL(pageURL, link)
		}

		entries = append(entries, domain.Entry{
			ID:            id,
			Author:        author,
			Content:       strings.TrimSpace(content.Text()),
			ContentHTML:   p.Sanitize(strings.TrimSpace(rawHTML)),
			Date:          strings.TrimSpace(permalink.Text()),
			FavoriteCount: favorites,
			AvatarURL:     resolveURL(pageURL, s.Find(avatarSelector).First().AttrOr("src", "")),
			ArchivedAt:    p.now().UnixMilli(),
			TopicTitle:    strings.TrimSpace(title.AttrOr("data-title", title.Text())),
			TopicURL:      topicURL,
		})
	})
	return entries
}

// entryIDFromPath extracts 123 from "/entry/123" or "https://host/entry/123?x".
func entryIDFromPath(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	dir, id := path.Split(strings.TrimSuffix(u.Path, "/"))
	if !strings.HasSuffix(dir, "/entry/") {
		return ""
	}
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return ""
	}
	return id
}

// EntryIDFromURL returns the entry id for a permalink URL or a bare numeric id.
func EntryIDFromURL(s string) (string, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "#"))
	if _, err := strconv.ParseUint(s, 10, 64); err == nil {
		return s, true
	}
	id := entryIDFromPath(s)
	return id, id != ""
}

func resolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return ref
	}
	return b.ResolveReference(r).String()
}

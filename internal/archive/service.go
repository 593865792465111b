// Package archive ties fetching, parsing, storage and export together.
package archive

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"limoni/internal/domain"
	"limoni/internal/export"
	"limoni/internal/injector"
	"limoni/internal/metrics"
	"limoni/internal/parser"
	"limoni/internal/scraper"
	"limoni/internal/storage"
)

// MaxFavoritePages bounds a single favorites import.
const MaxFavoritePages = 50

// ErrInvalidEntry is returned when a client supplied entry lacks an id or author.
var ErrInvalidEntry = errors.New("entry id and author are required")

// Service implements the archive operations on top of a repository.
type Service struct {
	repo     storage.Repository
	scraper  scraper.Scraper
	parser   *parser.Parser
	exporter *export.Exporter
	metrics  *metrics.Metrics
	baseURL  string
	log      logrus.FieldLogger
}

// NewService wires the archive dependencies. baseURL is the forum root,
// e.g. https://eksisozluk.com.
func NewService(
	repo storage.Repository,
	sc scraper.Scraper,
	p *parser.Parser,
	exp *export.Exporter,
	m *metrics.Metrics,
	baseURL string,
	logger logrus.FieldLogger,
) *Service {
	return &Service{
		repo:     repo,
		scraper:  sc,
		parser:   p,
		exporter: exp,
		metrics:  m,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		log:      logger.WithField("component", "archive"),
	}
}

// Repository exposes the underlying store for plain CRUD callers.
func (s *Service) Repository() storage.Repository {
	return s.repo
}

func (s *Service) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	page, err := s.scraper.FetchHTML(ctx, url)
	s.metrics.IncFetches(err == nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return doc, nil
}

// ArchiveEntry fetches an entry's permalink page and stores it.
func (s *Service) ArchiveEntry(ctx context.Context, entryID, collectionID string) (*domain.Entry, *domain.Collection, error) {
	return s.ArchiveFromPage(ctx, scraper.EntryURL(s.baseURL, entryID), entryID, collectionID)
}

// ArchiveFromPage stores the entry with entryID found on pageURL.
func (s *Service) ArchiveFromPage(ctx context.Context, pageURL, entryID, collectionID string) (*domain.Entry, *domain.Collection, error) {
	log := s.log.WithFields(logrus.Fields{"entry_id": entryID, "url": pageURL})

	doc, err := s.fetchDocument(ctx, pageURL)
	if err != nil {
		log.WithError(err).Error("Failed to load entry page")
		return nil, nil, err
	}
	entry, err := s.parser.ParseEntryByID(doc, entryID, pageURL)
	if err != nil {
		log.WithError(err).Warn("Failed to parse entry")
		return nil, nil, err
	}

	target, err := s.repo.AddEntry(ctx, entry, collectionID)
	if err != nil {
		return nil, nil, err
	}
	s.metrics.IncEntriesArchived("scrape", 1)
	return &entry, target, nil
}

// SaveEntry stores an entry that was extracted elsewhere. Its HTML is
// sanitized again since it did not come through the parser.
func (s *Service) SaveEntry(ctx context.Context, entry domain.Entry, collectionID string) (*domain.Collection, error) {
	entry.ID = strings.TrimSpace(entry.ID)
	entry.Author = strings.TrimSpace(entry.Author)
	if entry.ID == "" || entry.Author == "" {
		return nil, ErrInvalidEntry
	}
	entry.ContentHTML = s.parser.Sanitize(entry.ContentHTML)
	if entry.Content == "" {
		entry.Content = strings.TrimSpace(s.parser.StripHTML(entry.ContentHTML))
	}

	target, err := s.repo.AddEntry(ctx, entry, collectionID)
	if err != nil {
		return nil, err
	}
	s.metrics.IncEntriesArchived("client", 1)
	return target, nil
}

// ImportFavorites walks a user's favorites pages, stopping at the first
// empty page, and stores every entry found. It returns the number stored.
func (s *Service) ImportFavorites(ctx context.Context, nick string, pages int, collectionID string) (int, error) {
	nick = strings.TrimSpace(nick)
	if nick == "" {
		return 0, errors.New("nick must not be empty")
	}
	if pages <= 0 {
		pages = 1
	}
	pages = min(pages, MaxFavoritePages)
	log := s.log.WithFields(logrus.Fields{"nick": nick, "pages": pages})
	log.Info("Importing favorites")

	stored := 0
	for page := 1; page <= pages; page++ {
		url := scraper.FavoritesURL(s.baseURL, nick, page)
		doc, err := s.fetchDocument(ctx, url)
		if err != nil {
			log.WithError(err).WithField("page", page).Error("Failed to load favorites page")
			return stored, err
		}
		entries := s.parser.ParseFavorites(doc, url)
		if len(entries) == 0 {
			log.WithField("page", page).Info("No more favorites")
			break
		}
		for _, e := range entries {
			if _, err := s.repo.AddEntry(ctx, e, collectionID); err != nil {
				return stored, err
			}
			stored++
		}
	}

	s.metrics.IncEntriesArchived("favorites", stored)
	log.WithField("stored", stored).Info("Favorites imported")
	return stored, nil
}

// ReaderView fetches pageURL and returns it with archive controls injected
// into every entry. Forms post to actionURL.
func (s *Service) ReaderView(ctx context.Context, pageURL, actionURL string) (string, error) {
	doc, err := s.fetchDocument(ctx, pageURL)
	if err != nil {
		return "", err
	}
	data, err := s.repo.GetData(ctx)
	if err != nil {
		return "", err
	}

	n := injector.InjectAddButtons(doc, injector.Options{
		ActionURL:           actionURL,
		PageURL:             pageURL,
		Collections:         data.Collections,
		DefaultCollectionID: data.Settings.DefaultCollectionID,
	})
	if head := doc.Find("head").First(); head.Length() > 0 {
		head.PrependHtml(`<base href="` + html.EscapeString(pageURL) + `">`)
	}
	s.log.WithFields(logrus.Fields{"url": pageURL, "injected": n}).Debug("Reader view rendered")

	return doc.Html()
}

// Export renders a stored collection.
func (s *Service) Export(ctx context.Context, collectionID string, format export.Format) (*export.Result, error) {
	c, err := s.repo.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	res, err := s.exporter.Export(c, format)
	if err != nil {
		s.log.WithError(err).WithField("collection_id", collectionID).Error("Export failed")
		return nil, err
	}
	s.metrics.IncExports(string(format))
	return res, nil
}

// RefreshGauges updates collection gauges from the store.
func (s *Service) RefreshGauges(ctx context.Context) {
	cols, err := s.repo.GetCollections(ctx)
	if err != nil {
		return
	}
	s.metrics.SetCollections(len(cols))
}

package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// ErrBrowserNotFound is returned when no Chromium binary can be located.
var ErrBrowserNotFound = errors.New("rod browser dependency not found")

// RodScraper implements the Scraper interface using the rod library.
type RodScraper struct {
	log     logrus.FieldLogger
	timeout time.Duration
}

// NewRodScraper creates a new scraper service instance. Every fetch is
// bounded by timeout.
func NewRodScraper(logger logrus.FieldLogger, timeout time.Duration) *RodScraper {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RodScraper{
		log:     logger.WithField("component", "scraper"),
		timeout: timeout,
	}
}

// FetchHTML launches a headless browser, waits for the page to load and
// returns its rendered HTML. The browser is torn down before returning.
func (s *RodScraper) FetchHTML(ctx context.Context, url string) (html string, err error) {
	log := s.log.WithField("url", url)
	log.Info("Fetching page")

	path, exists := launcher.LookPath()
	if !exists {
		log.Error("Cannot find browser executable for rod")
		return "", ErrBrowserNotFound
	}
	u, err := launcher.New().Bin(path).Launch()
	if err != nil {
		log.WithError(err).Error("Failed to launch rod browser")
		return "", fmt.Errorf("failed to launch browser: %w", err)
	}
	browser := rod.New().ControlURL(u)
	if err = browser.Connect(); err != nil {
		log.WithError(err).Error("Failed to connect to rod browser")
		return "", fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			log.WithError(closeErr).Error("Error closing rod browser instance")
			if err == nil {
				err = fmt.Errorf("error closing browser: %w", closeErr)
			}
		} else {
			log.Debug("Rod browser instance closed")
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		log.WithError(err).Error("Failed to create rod page")
		return "", fmt.Errorf("failed to create page: %w", err)
	}

	pageCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	page = page.Context(pageCtx)

	if err = page.WaitLoad(); err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			log.WithError(pageCtx.Err()).Warn("Fetch timed out")
			return "", fmt.Errorf("fetch timed out for %s: %w", url, pageCtx.Err())
		}
		log.WithError(err).Error("Failed to wait for page load")
		return "", fmt.Errorf("failed waiting for page load: %w", err)
	}

	html, err = page.HTML()
	if err != nil {
		log.WithError(err).Error("Failed to read page HTML")
		return "", fmt.Errorf("failed to read page html: %w", err)
	}

	log.WithField("bytes", len(html)).Info("Page fetched successfully")
	return html, nil
}

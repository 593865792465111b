package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/coocood/freecache"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
)

// CachingScraper keeps recently fetched pages so that reading a page and then
// archiving an entry from it does not launch the browser twice. Pages are
// stored zstd-compressed; freecache rejects values above 1/1024 of its size.
type CachingScraper struct {
	next  Scraper
	cache *freecache.Cache
	ttl   int
	enc   *zstd.Encoder
	dec   *zstd.Decoder
	log   logrus.FieldLogger
}

// NewCachingScraper wraps next with a cache of sizeMB megabytes. A zero
// size or TTL disables caching and returns next unchanged.
func NewCachingScraper(next Scraper, sizeMB int, ttl time.Duration, logger logrus.FieldLogger) (Scraper, error) {
	log := logger.WithField("component", "page_cache")
	if sizeMB <= 0 || ttl <= 0 {
		log.Info("Page cache disabled")
		return next, nil
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("create page cache encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create page cache decoder: %w", err)
	}

	log.WithFields(logrus.Fields{"size_mb": sizeMB, "ttl": ttl}).Info("Page cache initialized")
	return &CachingScraper{
		next:  next,
		cache: freecache.NewCache(sizeMB * 1024 * 1024),
		ttl:   max(int(ttl.Seconds()), 1),
		enc:   enc,
		dec:   dec,
		log:   log,
	}, nil
}

// FetchHTML serves url from the cache or delegates to the wrapped scraper.
func (c *CachingScraper) FetchHTML(ctx context.Context, url string) (string, error) {
	log := c.log.WithField("url", url)
	key := []byte(url)

	if val, err := c.cache.Get(key); err == nil {
		html, err := c.dec.DecodeAll(val, nil)
		if err == nil {
			log.Debug("Page cache hit")
			return string(html), nil
		}
		log.WithError(err).Warn("Dropping corrupt cached page")
		c.cache.Del(key)
	}

	html, err := c.next.FetchHTML(ctx, url)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(key, c.enc.EncodeAll([]byte(html), nil), c.ttl); err != nil {
		log.WithError(err).Debug("Page not cached")
	}
	return html, nil
}

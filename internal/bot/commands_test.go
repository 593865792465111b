package bot

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limoni/internal/archive"
	"limoni/internal/export"
	"limoni/internal/metrics"
	"limoni/internal/parser"
	"limoni/internal/scraper"
	"limoni/internal/storage"
)

const site = "https://eksisozluk.com"

type pages map[string]string

func (p pages) FetchHTML(_ context.Context, url string) (string, error) {
	page, ok := p[url]
	if !ok {
		return "", fmt.Errorf("no page for %s", url)
	}
	return page, nil
}

const entry42 = `<html><body>
<h1 id="title"><a href="/go--1">go</a></h1>
<ul id="entry-item-list">
<li id="entry-item" data-id="42" data-author="gopher" data-favorite-count="1">
  <div class="content">share memory by communicating</div>
</li></ul></body></html>`

const favorites = `<html><body>
<div class="topic-item"><h1 id="title" data-title="t"></h1>
  <div class="content">fav</div>
  <a class="entry-author">yazar</a>
  <a class="entry-date permalink" href="/entry/99">tarih</a>
</div></body></html>`

func newTestCommands(t *testing.T) (*commands, storage.Repository) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	repo, err := storage.NewBadgerRepository(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	p := parser.New(logger)
	exp, err := export.New(p, time.UTC)
	require.NoError(t, err)

	sc := pages{
		scraper.EntryURL(site, "42"):           entry42,
		scraper.FavoritesURL(site, "yazar", 1): favorites,
		scraper.FavoritesURL(site, "yazar", 2): "<html><body></body></html>",
	}
	svc := archive.NewService(repo, sc, p, exp, metrics.New(), site, logger)
	return newCommands(svc, logger), repo
}

func TestSplitCommand(t *testing.T) {
	cmd, args := splitCommand("/Add@limoni_bot 42  abc")
	assert.Equal(t, "/add", cmd)
	assert.Equal(t, []string{"42", "abc"}, args)

	cmd, args = splitCommand("   ")
	assert.Empty(t, cmd)
	assert.Empty(t, args)
}

func TestCommands_CollectionLifecycle(t *testing.T) {
	c, repo := newTestCommands(t)
	ctx := context.Background()

	assert.Contains(t, c.execute(ctx, "/collections").Text, "No collections yet")

	r := c.execute(ctx, "/new Okuma listesi | sonra bakılacak")
	assert.Contains(t, r.Text, `Created "Okuma listesi"`)

	cols, err := repo.GetCollections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	id := cols[0].ID
	assert.Equal(t, "sonra bakılacak", cols[0].Description)

	r = c.execute(ctx, "/collections")
	assert.Contains(t, r.Text, "Okuma listesi ★ (0 entries)")
	assert.Contains(t, r.Text, "id: "+id)

	assert.Contains(t, c.execute(ctx, "/rename "+id+" Yeni ad").Text, `Renamed to "Yeni ad"`)
	assert.Equal(t, "Collection not found.", c.execute(ctx, "/rename nope x").Text)

	assert.Equal(t, "Collection deleted.", c.execute(ctx, "/drop "+id).Text)
	assert.Equal(t, "Collection not found.", c.execute(ctx, "/drop "+id).Text)
}

func TestCommands_NewIgnoresSurroundingWhitespace(t *testing.T) {
	c, repo := newTestCommands(t)
	ctx := context.Background()

	assert.Contains(t, c.execute(ctx, "  /new@limoni_bot\tGece okuması | uzun  ").Text, `Created "Gece okuması"`)

	cols, err := repo.GetCollections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "Gece okuması", cols[0].Name)
	assert.Equal(t, "uzun", cols[0].Description)

	assert.True(t, strings.HasPrefix(c.execute(ctx, "  /new   ").Text, "Usage: /new"))
}

func TestCommands_AddAndRemove(t *testing.T) {
	c, repo := newTestCommands(t)
	ctx := context.Background()

	r := c.execute(ctx, "/add 42")
	assert.Equal(t, `Saved #42 by gopher to "Varsayılan Koleksiyon".`, r.Text)

	// A bare permalink is archived as well.
	r = c.execute(ctx, site+"/entry/42")
	assert.Contains(t, r.Text, "Saved #42")

	cols, err := repo.GetCollections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	require.Len(t, cols[0].Entries, 1)

	assert.Equal(t, "Removed #42.", c.execute(ctx, "/remove "+cols[0].ID+" 42").Text)
	assert.Equal(t, "Collection not found.", c.execute(ctx, "/remove nope 42").Text)

	assert.True(t, strings.HasPrefix(c.execute(ctx, "/add").Text, "Usage: /add"))
	assert.True(t, strings.HasPrefix(c.execute(ctx, "/add 42 nope").Text, "Collection not found"))
	assert.True(t, strings.HasPrefix(c.execute(ctx, "/add 7").Text, "Something went wrong"))
}

func TestCommands_DefaultAndExport(t *testing.T) {
	c, repo := newTestCommands(t)
	ctx := context.Background()

	a, err := repo.CreateCollection(ctx, "A", "")
	require.NoError(t, err)
	b, err := repo.CreateCollection(ctx, "B", "")
	require.NoError(t, err)

	assert.Equal(t, "Default collection updated.", c.execute(ctx, "/default "+b.ID).Text)
	assert.Equal(t, "Collection not found.", c.execute(ctx, "/default nope").Text)

	settings, err := repo.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, settings.DefaultCollectionID)

	c.execute(ctx, "/add 42")
	got, err := repo.GetCollection(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, got.Entries, 1)

	r := c.execute(ctx, "/export "+b.ID+" json")
	require.NotNil(t, r.Document)
	assert.Equal(t, "B.json", r.Document.Filename)
	assert.Contains(t, string(r.Document.Data), `"author": "gopher"`)

	r = c.execute(ctx, "/export "+a.ID+" pdf")
	assert.Nil(t, r.Document)
	assert.Equal(t, "Format must be html, csv or json.", r.Text)
}

func TestCommands_Favorites(t *testing.T) {
	c, repo := newTestCommands(t)
	ctx := context.Background()

	assert.Equal(t, "Imported 1 favorites of yazar.", c.execute(ctx, "/favorites yazar 3").Text)
	assert.True(t, strings.HasPrefix(c.execute(ctx, "/favorites yazar x").Text, "Usage"))

	cols, err := repo.GetCollections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "99", cols[0].Entries[0].ID)
}

func TestCommands_UnknownAndEmpty(t *testing.T) {
	c, _ := newTestCommands(t)
	ctx := context.Background()

	assert.Contains(t, c.execute(ctx, "/nope").Text, "Unknown command")
	assert.Contains(t, c.execute(ctx, "hello").Text, "Unknown command")
	assert.Empty(t, c.execute(ctx, "").Text)
	assert.Contains(t, c.execute(ctx, "/start").Text, "/favorites")
}

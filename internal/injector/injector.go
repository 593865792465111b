// Package injector adds archive controls to forum pages served through the
// reader view.
package injector

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"limoni/internal/domain"
)

// Class names used to recognise injected markup on later passes.
const (
	AddButtonClass      = "limoni-add-btn"
	DropdownButtonClass = "limoni-dropdown-btn"
	DropdownMenuClass   = "limoni-dropdown-menu"
	ButtonGroupClass    = "limoni-button-group"
	ContainerClass      = "limoni-button-container"
)

// Options describe where the injected controls submit to.
type Options struct {
	// ActionURL receives the POSTed form (entryId, pageUrl, collectionId).
	ActionURL string
	// PageURL is the original address of the page being decorated.
	PageURL string
	// Collections populate the dropdown; DefaultCollectionID is starred.
	Collections         []domain.Collection
	DefaultCollectionID string
}

// InjectAddButtons decorates every entry that has an id and a feedback
// container and has not been decorated yet. It returns the number of
// button groups inserted; a second pass over the same document inserts none.
func InjectAddButtons(doc *goquery.Document, opts Options) int {
	injected := 0
	doc.Find("#entry-item").Each(func(_ int, entry *goquery.Selection) {
		entryID, ok := entry.Attr("data-id")
		if !ok || entryID == "" {
			return
		}
		if entry.Find("." + AddButtonClass).Length() > 0 {
			return
		}
		feedback := entry.Find(".feedback-container").First()
		if feedback.Length() == 0 {
			return
		}

		markup := buttonGroup(entryID, opts)
		favLinks := feedback.Find(".favorite-links").First()
		switch {
		case favLinks.Length() > 0 && !favLinks.Next().HasClass(ContainerClass):
			favLinks.AfterHtml(markup)
		case feedback.Find("." + ContainerClass).Length() == 0:
			feedback.AppendHtml(markup)
		default:
			return
		}
		injected++
	})
	return injected
}

func buttonGroup(entryID string, opts Options) string {
	esc := html.EscapeString
	var b strings.Builder

	fmt.Fprintf(&b, `<div class="%s">`, ContainerClass)
	fmt.Fprintf(&b, `<form method="post" action="%s" class="%s" data-entry-id="%s">`,
		esc(opts.ActionURL), ButtonGroupClass, esc(entryID))
	fmt.Fprintf(&b, `<input type="hidden" name="entryId" value="%s">`, esc(entryID))
	fmt.Fprintf(&b, `<input type="hidden" name="pageUrl" value="%s">`, esc(opts.PageURL))
	fmt.Fprintf(&b, `<button type="submit" class="%s" title="Varsayılan koleksiyona ekle">ekle</button>`, AddButtonClass)

	fmt.Fprintf(&b, `<details class="%s"><summary class="%s" title="Koleksiyon seç">▾</summary>`,
		DropdownMenuClass, DropdownButtonClass)
	if len(opts.Collections) == 0 {
		b.WriteString(`<div class="limoni-empty">Koleksiyon yok</div>`)
	}
	for _, c := range opts.Collections {
		label := esc(c.Name)
		class := "limoni-dropdown-item"
		if c.ID == opts.DefaultCollectionID {
			label = "★ " + label
			class += " limoni-default"
		}
		fmt.Fprintf(&b, `<button type="submit" name="collectionId" value="%s" class="%s" data-collection-id="%s">%s</button>`,
			esc(c.ID), class, esc(c.ID), label)
	}
	b.WriteString(`</details></form></div>`)
	return b.String()
}

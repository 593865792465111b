package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"limoni/internal/archive"
	"limoni/internal/domain"
	"limoni/internal/export"
	"limoni/internal/parser"
	"limoni/internal/storage"
)

const helpText = `limoni archives Ekşi Sözlük entries into collections.

/collections - list collections
/new <name> [| description] - create a collection
/rename <collection id> <name> - rename a collection
/add <entry id or link> [collection id] - archive an entry
/remove <collection id> <entry id> - remove an entry
/drop <collection id> - delete a collection
/default <collection id> - set the default collection
/export <collection id> <html|csv|json> - download a collection
/favorites <nick> [pages] - import a user's favorites

Sending an entry link archives it into the default collection.`

// reply is what a command produces: text, and optionally a file.
type reply struct {
	Text     string
	Document *export.Result
}

// commands executes bot commands against the archive. It has no Telegram
// dependency so it can be exercised directly.
type commands struct {
	svc  *archive.Service
	repo storage.Repository
	log  logrus.FieldLogger
}

func newCommands(svc *archive.Service, logger logrus.FieldLogger) *commands {
	return &commands{svc: svc, repo: svc.Repository(), log: logger}
}

// splitCommand turns "/add@limoni_bot 123 abc" into ("/add", ["123", "abc"]).
func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	cmd := strings.ToLower(fields[0])
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	return cmd, fields[1:]
}

func (c *commands) execute(ctx context.Context, text string) reply {
	text = strings.TrimSpace(text)
	cmd, args := splitCommand(text)
	log := c.log.WithField("command", cmd)

	var (
		r   reply
		err error
	)
	switch cmd {
	case "/start", "/help":
		r = reply{Text: helpText}
	case "/collections":
		r, err = c.list(ctx)
	case "/new":
		r, err = c.create(ctx, strings.TrimPrefix(text, strings.Fields(text)[0]))
	case "/rename":
		r, err = c.rename(ctx, args)
	case "/add":
		r, err = c.add(ctx, args)
	case "/remove":
		r, err = c.remove(ctx, args)
	case "/drop":
		r, err = c.drop(ctx, args)
	case "/default":
		r, err = c.setDefault(ctx, args)
	case "/export":
		r, err = c.export(ctx, args)
	case "/favorites":
		r, err = c.favorites(ctx, args)
	case "":
		return reply{}
	default:
		if id, ok := parser.EntryIDFromURL(cmd); ok && strings.Contains(cmd, "/entry/") {
			r, err = c.add(ctx, []string{id})
			break
		}
		return reply{Text: "Unknown command. Send /help for the list."}
	}

	if err != nil {
		log.WithError(err).Warn("Command failed")
		return reply{Text: userMessage(err)}
	}
	return r
}

var errUsage = errors.New("usage")

func usage(format string) error {
	return fmt.Errorf("%w: %s", errUsage, format)
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, errUsage):
		return "Usage" + strings.TrimPrefix(err.Error(), "usage")
	case errors.Is(err, storage.ErrCollectionNotFound):
		return "Collection not found."
	case errors.Is(err, parser.ErrEntryNotFound):
		return "Entry not found on the page."
	case errors.Is(err, storage.ErrInvalidName):
		return "Collection name must not be empty."
	case errors.Is(err, export.ErrUnsupportedFormat):
		return "Format must be html, csv or json."
	default:
		return "Something went wrong: " + err.Error()
	}
}

func (c *commands) list(ctx context.Context) (reply, error) {
	data, err := c.repo.GetData(ctx)
	if err != nil {
		return reply{}, err
	}
	if len(data.Collections) == 0 {
		return reply{Text: "No collections yet. Create one with /new <name>."}, nil
	}
	var b strings.Builder
	for _, col := range data.Collections {
		marker := ""
		if col.ID == data.Settings.DefaultCollectionID {
			marker = " ★"
		}
		fmt.Fprintf(&b, "%s%s (%d entries)\n  id: %s\n", col.Name, marker, len(col.Entries), col.ID)
	}
	return reply{Text: strings.TrimSuffix(b.String(), "\n")}, nil
}

func (c *commands) create(ctx context.Context, rest string) (reply, error) {
	name, description, _ := strings.Cut(rest, "|")
	if strings.TrimSpace(name) == "" {
		return reply{}, usage("/new <name> [| description]")
	}
	col, err := c.repo.CreateCollection(ctx, name, description)
	if err != nil {
		return reply{}, err
	}
	return reply{Text: fmt.Sprintf("Created %q (id: %s).", col.Name, col.ID)}, nil
}

func (c *commands) rename(ctx context.Context, args []string) (reply, error) {
	if len(args) < 2 {
		return reply{}, usage("/rename <collection id> <name>")
	}
	name := strings.Join(args[1:], " ")
	col, err := c.repo.UpdateCollection(ctx, args[0], &name, nil)
	if err != nil {
		return reply{}, err
	}
	return reply{Text: fmt.Sprintf("Renamed to %q.", col.Name)}, nil
}

func (c *commands) add(ctx context.Context, args []string) (reply, error) {
	if len(args) == 0 {
		return reply{}, usage("/add <entry id or link> [collection id]")
	}
	id, ok := parser.EntryIDFromURL(args[0])
	if !ok {
		return reply{}, usage("/add <entry id or link> [collection id]")
	}
	collectionID := ""
	if len(args) > 1 {
		collectionID = args[1]
	}
	entry, target, err := c.svc.ArchiveEntry(ctx, id, collectionID)
	if err != nil {
		return reply{}, err
	}
	return reply{Text: fmt.Sprintf("Saved #%s by %s to %q.", entry.ID, entry.Author, target.Name)}, nil
}

func (c *commands) remove(ctx context.Context, args []string) (reply, error) {
	if len(args) != 2 {
		return reply{}, usage("/remove <collection id> <entry id>")
	}
	entryID, ok := parser.EntryIDFromURL(args[1])
	if !ok {
		entryID = args[1]
	}
	if err := c.repo.DeleteEntry(ctx, args[0], entryID); err != nil {
		return reply{}, err
	}
	return reply{Text: fmt.Sprintf("Removed #%s.", entryID)}, nil
}

func (c *commands) drop(ctx context.Context, args []string) (reply, error) {
	if len(args) != 1 {
		return reply{}, usage("/drop <collection id>")
	}
	if _, err := c.repo.GetCollection(ctx, args[0]); err != nil {
		return reply{}, err
	}
	if err := c.repo.DeleteCollection(ctx, args[0]); err != nil {
		return reply{}, err
	}
	return reply{Text: "Collection deleted."}, nil
}

func (c *commands) setDefault(ctx context.Context, args []string) (reply, error) {
	if len(args) != 1 {
		return reply{}, usage("/default <collection id>")
	}
	if _, err := c.repo.UpdateSettings(ctx, domain.SettingsPatch{DefaultCollectionID: &args[0]}); err != nil {
		return reply{}, err
	}
	return reply{Text: "Default collection updated."}, nil
}

func (c *commands) export(ctx context.Context, args []string) (reply, error) {
	if len(args) != 2 {
		return reply{}, usage("/export <collection id> <html|csv|json>")
	}
	format, err := export.ParseFormat(args[1])
	if err != nil {
		return reply{}, err
	}
	res, err := c.svc.Export(ctx, args[0], format)
	if err != nil {
		return reply{}, err
	}
	return reply{Text: res.Filename, Document: res}, nil
}

func (c *commands) favorites(ctx context.Context, args []string) (reply, error) {
	if len(args) == 0 || len(args) > 2 {
		return reply{}, usage("/favorites <nick> [pages]")
	}
	pages := 1
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return reply{}, usage("/favorites <nick> [pages]")
		}
		pages = n
	}
	n, err := c.svc.ImportFavorites(ctx, args[0], pages, "")
	if err != nil {
		return reply{}, err
	}
	return reply{Text: fmt.Sprintf("Imported %d favorites of %s.", n, args[0])}, nil
}

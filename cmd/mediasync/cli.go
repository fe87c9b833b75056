package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/mediasync/internal/errors"
	"github.com/hpungsan/mediasync/internal/library"
	"github.com/hpungsan/mediasync/internal/ops"
	"github.com/hpungsan/mediasync/internal/session"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(b *ops.Browser) *cli.App {
	app := &cli.App{
		Name:    "mediasync",
		Usage:   "Media library session with write-back persistence",
		Version: Version,
		Commands: []*cli.Command{
			sessionCmd(b),
			loadCmd(b),
			backCmd(b),
			viewCmd(b),
			itemCmd(b),
			queryCmd(b),
			currentCmd(b),
			moveCmd(b),
			jumpCmd(b),
			dropCmd(b),
			renumberCmd(b),
			exportCmd(b),
			importCmd(b),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// viewFlags are the projection settings shared by commands that resolve
// against the filtered and sorted library.
func viewFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "sort", Aliases: []string{"s"}, Usage: "Sort: none|name|weight|elo|shuffle"},
		&cli.StringFlag{Name: "mode", Usage: "Tag filter mode: and|or|exclusive"},
		&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Media kind: all|image|video|audio"},
		&cli.Uint64Flag{Name: "seed", Usage: "Seed for the shuffle sort"},
	}
}

func viewOptions(c *cli.Context) ops.ViewOptions {
	return ops.ViewOptions{
		Sort: c.String("sort"),
		Mode: c.String("mode"),
		Kind: c.String("kind"),
		Seed: c.Uint64("seed"),
	}
}

// sessionCmd groups the raw slot commands.
func sessionCmd(b *ops.Browser) *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Inspect or reset the persisted session slots",
		Subcommands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Print the session, or one slot",
				ArgsUsage: "[slot]",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return outputJSON(b.Cache().Data())
					}
					slot, ok := session.ParseSlot(c.Args().First())
					if !ok {
						return outputError(errors.NewUnknownSlot(c.Args().First()))
					}
					rec, _ := b.Cache().Get(slot)
					return outputJSON(rec)
				},
			},
			{
				Name:      "clear",
				Usage:     "Clear slots (all when none are named)",
				ArgsUsage: "[slot...]",
				Action: func(c *cli.Context) error {
					slots := append([]session.Slot(nil), session.AllSlots...)
					if c.NArg() > 0 {
						slots = slots[:0]
						for _, name := range c.Args().Slice() {
							slot, ok := session.ParseSlot(name)
							if !ok {
								return outputError(errors.NewUnknownSlot(name))
							}
							slots = append(slots, slot)
						}
					}
					b.ClearSession(slots...)
					return outputJSON(map[string]any{"cleared": slots})
				},
			},
			{
				Name:  "flush",
				Usage: "Write pending session changes to disk",
				Action: func(c *cli.Context) error {
					if err := b.Cache().FlushAll(ctxOf(c)); err != nil {
						return outputError(errors.NewInternal(err))
					}
					return outputJSON(map[string]any{"flushed": true})
				},
			},
		},
	}
}

// loadCmd creates the load command.
func loadCmd(b *ops.Browser) *cli.Command {
	return &cli.Command{
		Name:      "load",
		Usage:     "Replace the library with the given paths (or items as JSON on stdin)",
		ArgsUsage: "[path...]",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "initial", Aliases: []string{"i"}, Usage: "Path to focus after loading"},
			&cli.StringFlag{Name: "prefix", Aliases: []string{"p"}, Usage: "Load stored items under this path prefix"},
			&cli.BoolFlag{Name: "json", Usage: "Read a JSON array of items from stdin"},
		}, viewFlags()...),
		Action: func(c *cli.Context) error {
			var items []library.Item
			if c.Bool("json") {
				data, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				if err := json.Unmarshal([]byte(data), &items); err != nil {
					return outputError(errors.NewInvalidRequest(fmt.Sprintf("items must be a JSON array: %v", err)))
				}
			}
			for _, p := range c.Args().Slice() {
				items = append(items, library.Item{Path: p})
			}

			output, err := b.LoadLibrary(ctxOf(c), ops.LoadInput{
				Items:       items,
				Prefix:      c.String("prefix"),
				InitialFile: c.String("initial"),
				View:        viewOptions(c),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// backCmd creates the back command.
func backCmd(b *ops.Browser) *cli.Command {
	return &cli.Command{
		Name:  "back",
		Usage: "Return to the previously loaded library",
		Flags: viewFlags(),
		Action: func(c *cli.Context) error {
			output, err := b.Back(viewOptions(c))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// viewCmd creates the view command.
func viewCmd(b *ops.Browser) *cli.Command {
	return &cli.Command{
		Name:  "view",
		Usage: "List the library as filtered and sorted",
		Flags: append([]cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultViewLimit, Usage: "Max items to return"},
			&cli.IntFlag{Name: "offset", Usage: "Pagination offset"},
		}, viewFlags()...),
		Action: func(c *cli.Context) error {
			output, err := b.View(ops.ViewInput{
				View:   viewOptions(c),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// queryCmd creates the query command.
func queryCmd(b *ops.Browser) *cli.Command {
	return &cli.Command{
		Name:  "query",
		Usage: "Update the search state (prints it when no flag is given)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tags", Aliases: []string{"t"}, Usage: "Comma-separated tag filter; empty clears it"},
			&cli.StringFlag{Name: "text", Usage: "Path text filter"},
			&cli.StringFlag{Name: "category", Usage: "Most recent tag category"},
		},
		Action: func(c *cli.Context) error {
			var input ops.QueryInput
			changed := false
			if c.IsSet("tags") {
				input.Tags = parseTags(c.String("tags"))
				if input.Tags == nil {
					input.Tags = []string{}
				}
				changed = true
			}
			if c.IsSet("text") {
				text := c.String("text")
				input.Text = &text
				changed = true
			}
			if c.IsSet("category") {
				category := c.String("category")
				input.Category = &category
				changed = true
			}
			if !changed {
				return outputJSON(b.Query())
			}
			return outputJSON(b.SetQuery(input))
		},
	}
}

// currentCmd creates the current command.
func currentCmd(b *ops.Browser) *cli.Command {
	return &cli.Command{
		Name:  "current",
		Usage: "Print the focused item",
		Flags: viewFlags(),
		Action: func(c *cli.Context) error {
			output, err := b.Current(viewOptions(c))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// itemCmd creates the item command.
func itemCmd(b *ops.Browser) *cli.Command {
	return &cli.Command{
		Name:      "item",
		Usage:     "Print one item's stored weight, elo and tags",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "stamp", Usage: "Time stamp, for time-coded media"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("item takes one path"))
			}
			output, err := b.Item(ctxOf(c), library.KeyOf(c.Args().First(), optionalFloat(c, "stamp")))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// moveCmd creates the move command.
func moveCmd(b *ops.Browser) *cli.Command {
	return &cli.Command{
		Name:  "move",
		Usage: "Move the cursor by --delta, wrapping at either end",
		Flags: append([]cli.Flag{
			&cli.IntFlag{Name: "delta", Aliases: []string{"d"}, Value: 1, Usage: "Relative move"},
			&cli.Float64Flag{Name: "scroll", Usage: "Scroll position to store with the cursor"},
		}, viewFlags()...),
		Action: func(c *cli.Context) error {
			output, err := b.Move(ops.MoveInput{
				View:           viewOptions(c),
				Delta:          c.Int("delta"),
				ScrollPosition: optionalFloat(c, "scroll"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// jumpCmd creates the jump command.
func jumpCmd(b *ops.Browser) *cli.Command {
	return &cli.Command{
		Name:      "jump",
		Usage:     "Move the cursor to an absolute position",
		ArgsUsage: "<index>",
		Flags: append([]cli.Flag{
			&cli.Float64Flag{Name: "scroll", Usage: "Scroll position to store with the cursor"},
		}, viewFlags()...),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("jump takes exactly one index"))
			}
			index, err := strconv.Atoi(c.Args().First())
			if err != nil {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("invalid index: %s", c.Args().First())))
			}
			output, err := b.Jump(ops.MoveInput{
				View:           viewOptions(c),
				Index:          index,
				ScrollPosition: optionalFloat(c, "scroll"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// dropCmd creates the drop command.
func dropCmd(b *ops.Browser) *cli.Command {
	return &cli.Command{
		Name:      "drop",
		Usage:     "Reorder: drop <dragged> on the --side of <target> (weight sort)",
		ArgsUsage: "<dragged> <target>",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "side", Value: "left", Usage: "Drop side: left|right"},
			&cli.Float64Flag{Name: "dragged-stamp", Usage: "Time stamp of the dragged item"},
			&cli.Float64Flag{Name: "target-stamp", Usage: "Time stamp of the target item"},
			&cli.BoolFlag{Name: "renumber", Usage: "Renumber first when the gap cannot be split"},
		}, viewFlags()...),
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return outputError(errors.NewInvalidRequest("drop takes a dragged and a target path"))
			}
			view := viewOptions(c)
			if view.Sort == "" {
				view.Sort = string(library.SortWeight)
			}
			output, err := b.Drop(ctxOf(c), ops.DropInput{
				View:                view,
				Dragged:             library.KeyOf(c.Args().Get(0), optionalFloat(c, "dragged-stamp")),
				Target:              library.KeyOf(c.Args().Get(1), optionalFloat(c, "target-stamp")),
				Side:                c.String("side"),
				RenumberIfExhausted: c.Bool("renumber"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// renumberCmd creates the renumber command.
func renumberCmd(b *ops.Browser) *cli.Command {
	return &cli.Command{
		Name:  "renumber",
		Usage: "Reassign weights 1..n in weight order",
		Action: func(c *cli.Context) error {
			output, err := b.Renumber(ctxOf(c))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(b *ops.Browser) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write the session to a JSON snapshot",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Usage: "Output file path"},
			&cli.BoolFlag{Name: "flush", Value: true, Usage: "Flush pending writes first"},
		},
		Action: func(c *cli.Context) error {
			output, err := b.Export(ctxOf(c), ops.ExportInput{
				Path:       c.String("path"),
				FlushFirst: c.Bool("flush"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(b *ops.Browser) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Restore the session from a JSON snapshot",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Required: true, Usage: "Input file path"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "replace", Usage: "Import mode: replace|merge"},
		},
		Action: func(c *cli.Context) error {
			output, err := b.Import(ctxOf(c), ops.ImportInput{
				Path: c.String("path"),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// outputJSON prints v as indented JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var mediaErr *errors.MediaError
	if stderrors.As(err, &mediaErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", mediaErr.Code, mediaErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// ctxOf returns the command context, falling back to Background when the app
// was run without one.
func ctxOf(c *cli.Context) context.Context {
	if c.Context != nil {
		return c.Context
	}
	return context.Background()
}

// optionalFloat returns the flag value, or nil when the flag was not given.
func optionalFloat(c *cli.Context, name string) *float64 {
	if !c.IsSet(name) {
		return nil
	}
	v := c.Float64(name)
	return &v
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// parseTags splits a comma-separated string into a slice of tags.
func parseTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

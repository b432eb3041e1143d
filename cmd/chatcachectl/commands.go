package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"
)

var configCommand = &cli.Command{
	Name:  "config",
	Usage: "Write the example configuration file",
	Action: func(ctx *cli.Context) error {
		output := ctx.String("output")
		if output == "-" {
			_, err := fmt.Print(ExampleConfig)
			return err
		}
		if err := os.WriteFile(output, []byte(ExampleConfig), 0600); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Printf("Wrote example config to %s\n", output)
		return nil
	},
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Value:   "-",
			Usage:   "Output file path (- for stdout)",
		},
	},
}

var initCommand = &cli.Command{
	Name:   "init",
	Usage:  "Create the cache database and schema",
	Before: prepareApp,
	After:  closeApp,
	Action: cmdInit,
}

var saveCommand = &cli.Command{
	Name:      "save",
	Usage:     "Save a JSON array of messages to a room",
	ArgsUsage: "ROOM FILE",
	Before:    prepareApp,
	After:     closeApp,
	Action:    cmdSave,
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "max",
			Usage: "Messages to keep in the room (0 uses the config value)",
		},
	},
}

var loadCommand = &cli.Command{
	Name:      "load",
	Usage:     "Print cached messages of a room, newest first",
	ArgsUsage: "ROOM",
	Before:    prepareApp,
	After:     closeApp,
	Action:    cmdLoad,
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Maximum messages to print (0 uses the config value)",
		},
	},
}

var deleteCommand = &cli.Command{
	Name:      "delete",
	Usage:     "Delete one cached message",
	ArgsUsage: "ROOM MESSAGE",
	Before:    prepareApp,
	After:     closeApp,
	Action:    cmdDelete,
}

var clearRoomCommand = &cli.Command{
	Name:      "clear-room",
	Usage:     "Delete every cached message and the state of a room",
	ArgsUsage: "ROOM",
	Before:    prepareApp,
	After:     closeApp,
	Action:    cmdClearRoom,
}

var clearAllCommand = &cli.Command{
	Name:   "clear-all",
	Usage:  "Empty the whole cache",
	Before: prepareApp,
	After:  closeApp,
	Action: cmdClearAll,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "yes",
			Usage: "Confirm that every cached room should be deleted",
		},
	},
}

var cleanupCommand = &cli.Command{
	Name:   "cleanup",
	Usage:  "Delete messages older than the retention period",
	Before: prepareApp,
	After:  closeApp,
	Action: cmdCleanup,
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "days",
			Usage: "Maximum message age in days (0 uses the config value)",
		},
	},
}

var roomStateCommand = &cli.Command{
	Name:      "room-state",
	Usage:     "Show when a room was last cached",
	ArgsUsage: "ROOM",
	Before:    prepareApp,
	After:     closeApp,
	Action:    cmdRoomState,
}

var setCachedAtCommand = &cli.Command{
	Name:      "set-cached-at",
	Usage:     "Set the cache time of a room (defaults to now)",
	ArgsUsage: "ROOM [UNIX_MS]",
	Before:    prepareApp,
	After:     closeApp,
	Action:    cmdSetCachedAt,
}

var statsCommand = &cli.Command{
	Name:      "stats",
	Usage:     "Show message count and cache time of a room",
	ArgsUsage: "ROOM",
	Before:    prepareApp,
	After:     closeApp,
	Action:    cmdStats,
}

func requireArgs(ctx *cli.Context, names ...string) error {
	if ctx.NArg() < len(names) {
		return fmt.Errorf("you must specify %s", names[ctx.NArg()])
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdInit(ctx *cli.Context) error {
	cache := getCache(ctx)
	if !cache.Enabled() {
		return fmt.Errorf("no storage engine could open %s", getConfig(ctx).Cache.Path)
	}
	fmt.Printf("Cache ready at %s (engine: %s)\n", getConfig(ctx).Cache.Path, cache.EngineName())
	return nil
}

func cmdSave(ctx *cli.Context) error {
	if err := requireArgs(ctx, "a room", "a file"); err != nil {
		return err
	}
	room, path := ctx.Args().Get(0), ctx.Args().Get(1)

	var in io.Reader = os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer file.Close()
		in = file
	}
	var items []json.RawMessage
	if err := json.NewDecoder(in).Decode(&items); err != nil {
		return fmt.Errorf("failed to parse messages: %w", err)
	}
	messages := make([]any, len(items))
	for i, item := range items {
		messages[i] = item
	}

	maxMessages := ctx.Int("max")
	if maxMessages <= 0 {
		maxMessages = getConfig(ctx).Cache.MaxMessages
	}
	if err := getCache(ctx).SaveRoomMessages(ctx.Context, room, messages, maxMessages); err != nil {
		return err
	}
	fmt.Printf("Saved %d messages to room '%s'\n", len(messages), room)
	return nil
}

func cmdLoad(ctx *cli.Context) error {
	if err := requireArgs(ctx, "a room"); err != nil {
		return err
	}
	limit := ctx.Int("limit")
	if limit <= 0 {
		limit = getConfig(ctx).Cache.LoadLimit
	}
	res, err := getCache(ctx).LoadRoomMessages(ctx.Context, ctx.Args().Get(0), limit)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func cmdDelete(ctx *cli.Context) error {
	if err := requireArgs(ctx, "a room", "a message ID"); err != nil {
		return err
	}
	room, messageID := ctx.Args().Get(0), ctx.Args().Get(1)
	if err := getCache(ctx).DeleteMessage(ctx.Context, room, messageID); err != nil {
		return err
	}
	fmt.Printf("Message '%s' deleted from room '%s'\n", messageID, room)
	return nil
}

func cmdClearRoom(ctx *cli.Context) error {
	if err := requireArgs(ctx, "a room"); err != nil {
		return err
	}
	room := ctx.Args().Get(0)
	if err := getCache(ctx).ClearRoom(ctx.Context, room); err != nil {
		return err
	}
	fmt.Printf("Room '%s' cleared\n", room)
	return nil
}

func cmdClearAll(ctx *cli.Context) error {
	if !ctx.Bool("yes") {
		return fmt.Errorf("refusing to clear the cache without --yes")
	}
	if err := getCache(ctx).ClearAll(ctx.Context); err != nil {
		return err
	}
	fmt.Println("Cache cleared")
	return nil
}

func cmdCleanup(ctx *cli.Context) error {
	days := ctx.Int("days")
	if days <= 0 {
		days = getConfig(ctx).Cache.RetentionDays
	}
	n, err := getCache(ctx).CleanupOldMessages(ctx.Context, days)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d messages older than %d days\n", n, days)
	return nil
}

func cmdRoomState(ctx *cli.Context) error {
	if err := requireArgs(ctx, "a room"); err != nil {
		return err
	}
	state, err := getCache(ctx).GetRoomState(ctx.Context, ctx.Args().Get(0))
	if err != nil {
		return err
	}
	return printJSON(state)
}

func cmdSetCachedAt(ctx *cli.Context) error {
	if err := requireArgs(ctx, "a room"); err != nil {
		return err
	}
	room := ctx.Args().Get(0)
	var ts int64
	if ctx.NArg() > 1 {
		var err error
		ts, err = strconv.ParseInt(ctx.Args().Get(1), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}
	return getCache(ctx).SetRoomCachedAt(ctx.Context, room, ts)
}

func cmdStats(ctx *cli.Context) error {
	if err := requireArgs(ctx, "a room"); err != nil {
		return err
	}
	room := ctx.Args().Get(0)
	cache := getCache(ctx)
	count, err := cache.CountRoomMessages(ctx.Context, room)
	if err != nil {
		return err
	}
	state, err := cache.GetRoomState(ctx.Context, room)
	if err != nil {
		return err
	}
	out := struct {
		RoomID     string `json:"room_id"`
		Messages   int    `json:"messages"`
		CachedAtMS *int64 `json:"cached_at_ms"`
		Engine     string `json:"engine"`
	}{RoomID: room, Messages: count, Engine: cache.EngineName()}
	if state != nil {
		out.CachedAtMS = &state.CachedAtMS
	}
	return printJSON(out)
}

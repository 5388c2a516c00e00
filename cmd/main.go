package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/AlexandriaDAO/shelfdb"
	"github.com/AlexandriaDAO/shelfdb/shelf"
	"github.com/AlexandriaDAO/shelfdb/utils"
	"github.com/ergochat/readline"
	"github.com/prometheus/client_golang/prometheus"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("create"),
	readline.PcItem("show"),
	readline.PcItem("add-text"),
	readline.PcItem("add-asset"),
	readline.PcItem("add-shelf"),
	readline.PcItem("remove"),
	readline.PcItem("move"),
	readline.PcItem("tag"),
	readline.PcItem("untag"),
	readline.PcItem("popular"),
	readline.PcItem("find"),
	readline.PcItem("recent"),
	readline.PcItem("feed"),
	readline.PcItem("follow"),
	readline.PcItem("follow-tag"),
	readline.PcItem("discover"),
	readline.PcItem("stats"),
	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func showShelf(e *shelfdb.Engine, id string) error {
	s, err := e.GetShelf(id)
	if err != nil {
		return err
	}
	fmt.Printf("%s %q by %s tags=%v\n", s.ID, s.Title, s.Owner, s.Tags)
	items, err := e.OrderedItems(id)
	if err != nil {
		return err
	}
	for item := range items {
		fmt.Printf("  #%d\t%s\n", item.ID, item.Content)
	}
	return nil
}

func main() {
	if len(os.Args) < 3 {
		_, _ = fmt.Fprintln(os.Stderr, "Usage: shelfdb <dir> <user>")
		os.Exit(-2)
	}
	dir, user := os.Args[1], shelf.UID(os.Args[2])

	l, err := readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     "/tmp/shelfdb.history",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	e, err := shelfdb.Open(dir, shelfdb.Options{
		Logger: utils.NewDefaultLogger(slog.LevelWarn),
	})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}
	for _, c := range e.Collectors() {
		prometheus.MustRegister(c)
	}

	ctx := context.Background()
	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			} else {
				continue
			}
		} else if err == io.EOF {
			break
		}

		line = strings.TrimSpace(line)
		args := strings.Split(line, " ")
		cmd := args[0]
		args = args[1:]
		err = nil
		switch cmd {
		case "create":
			if len(args) < 1 {
				err = fmt.Errorf("usage: create <title> [tag ...]")
				break
			}
			var s *shelf.Shelf
			s, err = e.CreateShelf(ctx, user, args[0], "", args[1:])
			if err == nil {
				fmt.Println(s.ID)
			}
		case "show":
			for _, arg := range args {
				if err = showShelf(e, arg); err != nil {
					break
				}
			}
		case "add-text":
			if len(args) < 2 {
				err = fmt.Errorf("usage: add-text <shelf> <text>")
				break
			}
			var id uint32
			id, err = e.AddItem(ctx, user, args[0], shelf.Text(strings.Join(args[1:], " ")), nil, false)
			if err == nil {
				fmt.Printf("#%d\n", id)
			}
		case "add-asset":
			if len(args) != 2 {
				err = fmt.Errorf("usage: add-asset <shelf> <asset-id>")
				break
			}
			var id uint32
			id, err = e.AddItem(ctx, user, args[0], shelf.AssetRef(args[1]), nil, false)
			if err == nil {
				fmt.Printf("#%d\n", id)
			}
		case "add-shelf":
			if len(args) != 2 {
				err = fmt.Errorf("usage: add-shelf <shelf> <nested-shelf>")
				break
			}
			var id uint32
			id, err = e.AddItem(ctx, user, args[0], shelf.NestedShelf(args[1]), nil, false)
			if err == nil {
				fmt.Printf("#%d\n", id)
			}
		case "remove":
			if len(args) != 2 {
				err = fmt.Errorf("usage: remove <shelf> <item>")
				break
			}
			var item uint64
			if item, err = strconv.ParseUint(args[1], 10, 32); err == nil {
				_, err = e.RemoveItem(ctx, user, args[0], uint32(item))
			}
		case "move":
			if len(args) != 4 || (args[3] != "before" && args[3] != "after") {
				err = fmt.Errorf("usage: move <shelf> <item> <reference> before|after")
				break
			}
			var item, ref uint64
			if item, err = strconv.ParseUint(args[1], 10, 32); err != nil {
				break
			}
			if ref, err = strconv.ParseUint(args[2], 10, 32); err != nil {
				break
			}
			ref32 := uint32(ref)
			err = e.MoveItem(ctx, user, args[0], uint32(item), &ref32, args[3] == "before")
		case "tag":
			if len(args) != 2 {
				err = fmt.Errorf("usage: tag <shelf> <tag>")
				break
			}
			err = e.AddTag(ctx, user, args[0], args[1])
		case "untag":
			if len(args) != 2 {
				err = fmt.Errorf("usage: untag <shelf> <tag>")
				break
			}
			err = e.RemoveTag(ctx, user, args[0], args[1])
		case "popular":
			result, perr := e.PopularTags(nil, 20)
			err = perr
			for _, tc := range result.Items {
				fmt.Printf("%s\t%d\n", tc.Tag, tc.Count)
			}
		case "find":
			if len(args) != 1 {
				err = fmt.Errorf("usage: find <prefix>")
				break
			}
			result, perr := e.TagsByPrefix(args[0], nil, 20)
			err = perr
			for _, tag := range result.Items {
				fmt.Println(tag)
			}
		case "recent":
			page, perr := e.RecentShelves(0, 20)
			err = perr
			for _, entry := range page.Items {
				fmt.Printf("%s\t%s\t%v\n", entry.ShelfID, entry.Owner, entry.Tags)
			}
			if err == nil {
				fmt.Printf("total %d\n", page.TotalCount)
			}
		case "feed":
			result, perr := e.StorylineFeed(user, nil, 20)
			err = perr
			for _, entry := range result.Items {
				fmt.Printf("%s\t%s\t%v\n", entry.ShelfID, entry.Owner, entry.Tags)
			}
		case "follow":
			if len(args) != 1 {
				err = fmt.Errorf("usage: follow <user>")
				break
			}
			err = e.FollowUser(ctx, user, shelf.UID(args[0]))
		case "follow-tag":
			if len(args) != 1 {
				err = fmt.Errorf("usage: follow-tag <tag>")
				break
			}
			err = e.FollowTag(ctx, user, args[0])
		case "discover":
			for _, id := range e.DiscoveryFeed(20) {
				fmt.Println(id)
			}
		case "stats":
			for op, sec := range e.Stats() {
				fmt.Printf("%s\t%.6fs\n", op, sec)
			}
		case "exit", "quit":
			ex := 0
			if err = e.Close(); err != nil {
				_, _ = fmt.Fprintln(os.Stderr, err.Error())
				ex = -1
			}
			os.Exit(ex)
		case "help", "":
			fmt.Println("commands: create show add-text add-asset add-shelf remove move tag untag popular find recent feed follow follow-tag discover stats exit")
		default:
			_, _ = fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
		}

		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error executing %s: %s\n", cmd, err.Error())
		}
	}
}

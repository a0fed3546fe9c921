// Command admin inspects and moderates the profile database while the
// server is offline. Run it against a live database only from the same host;
// the store opens a single WAL connection.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"emberhold.gg/internal/persistence/profiledb"
	"emberhold.gg/internal/profile"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "show":
			showCmd(os.Args[2:])
			return
		case "ban", "unban", "op", "deop":
			flagCmd(os.Args[1], os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dbPath := fs.String("db", "./data/profiles.db", "profile database path")
	limit := fs.Int("limit", 50, "max rows")
	_ = fs.Parse(args)

	store := openStore(*dbPath)
	defer store.Close()

	recs, err := store.List(context.Background(), *limit)
	if err != nil {
		fatal("list:", err)
	}
	for _, rec := range recs {
		mark := ""
		if rec.Flags.Banned {
			mark = " [banned]"
		}
		if rec.Flags.Operator {
			mark += " [op]"
		}
		fmt.Printf("%-36s %-16s playtime=%-8s last_seen=%s%s\n",
			rec.ID, rec.Name,
			(time.Duration(rec.PlaytimeSecs) * time.Second).String(),
			time.Unix(rec.LastSeenUnix, 0).Format(time.RFC3339),
			mark)
	}
}

func showCmd(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	dbPath := fs.String("db", "./data/profiles.db", "profile database path")
	id := fs.String("id", "", "player id")
	name := fs.String("name", "", "player name (used when -id is empty)")
	_ = fs.Parse(args)

	store := openStore(*dbPath)
	defer store.Close()

	rec := lookup(store, *id, *name)
	out, err := json.MarshalIndent(map[string]any{
		"id":            rec.ID,
		"name":          rec.Name,
		"flags":         rec.Flags,
		"created_at":    time.Unix(rec.CreatedAtUnix, 0).Format(time.RFC3339),
		"last_seen":     time.Unix(rec.LastSeenUnix, 0).Format(time.RFC3339),
		"playtime_secs": rec.PlaytimeSecs,
		"inventory":     json.RawMessage(rec.Inventory),
		"stats":         json.RawMessage(rec.Stats),
		"social":        json.RawMessage(rec.Social),
	}, "", "  ")
	if err != nil {
		fatal("encode:", err)
	}
	fmt.Println(string(out))
}

func flagCmd(verb string, args []string) {
	fs := flag.NewFlagSet(verb, flag.ExitOnError)
	dbPath := fs.String("db", "./data/profiles.db", "profile database path")
	id := fs.String("id", "", "player id")
	name := fs.String("name", "", "player name (used when -id is empty)")
	_ = fs.Parse(args)

	store := openStore(*dbPath)
	defer store.Close()

	rec := lookup(store, *id, *name)
	switch verb {
	case "ban":
		rec.Flags.Banned = true
	case "unban":
		rec.Flags.Banned = false
	case "op":
		rec.Flags.Operator = true
	case "deop":
		rec.Flags.Operator = false
	}
	if _, err := store.SaveSync(rec); err != nil {
		fatal("save:", err)
	}
	fmt.Printf("%s %s (%s): flags=%+v\n", verb, rec.Name, rec.ID, rec.Flags)
}

func openStore(path string) *profiledb.Store {
	store, err := profiledb.Open(path)
	if err != nil {
		fatal("open db:", err)
	}
	return store
}

func lookup(store *profiledb.Store, id, name string) *profile.Record {
	ctx := context.Background()
	var rec *profile.Record
	var err error
	switch {
	case id != "":
		rec, err = store.FindByID(ctx, id)
	case name != "":
		rec, err = store.FindByName(ctx, name)
	default:
		fatal("missing -id or -name", nil)
	}
	if err != nil {
		fatal("lookup:", err)
	}
	return rec
}

func fatal(msg string, err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, msg, err)
	} else {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(1)
}

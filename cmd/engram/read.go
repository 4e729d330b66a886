package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"engram/internal/store"
)

var queryCmd = &cobra.Command{
	Use:   "query <label-or-id>",
	Short: "List current entities of a label, or show one entity by id",
	Long: `Query resolves its argument against the schema first: a declared
label lists every live entity of that label at its current version;
anything else is treated as an entity id and shown in full.`,
	Example: `  engram query Service
  engram query 4f2a91c0`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()
	ctx := context.Background()

	if a.registry.HasLabel(args[0]) {
		entities, err := a.reader.ByLabel(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOut {
			return emitJSON(entities)
		}
		printEntityTable(args[0], entities)
		return nil
	}

	es, err := a.reader.Current(ctx, args[0])
	if err != nil {
		return err
	}
	if es == nil {
		return fmt.Errorf("no label or live entity %q", args[0])
	}
	if jsonOut {
		return emitJSON(es)
	}
	printEntityDetail(*es)
	return nil
}

var (
	searchWhere   []string
	searchLimit   int
	searchOrderBy string
)

var searchCmd = &cobra.Command{
	Use:   "search <label>",
	Short: "Search current entities by property filters",
	Long: `Search applies conjunctive property filters to the live heads of a
label. Filter syntax: prop=value (equals), prop~value (contains),
prop>value, prop<value, prop>=value, prop<=value. Values parse as JSON
when they can, so port>=8080 compares numerically.`,
	Example: `  engram search Service --where status=active --where port>=8080
  engram search Endpoint --where path~login --order-by path --limit 10`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	filters := make([]store.Filter, 0, len(searchWhere))
	for _, expr := range searchWhere {
		f, err := parseFilter(expr)
		if err != nil {
			return err
		}
		filters = append(filters, f)
	}

	entities, err := a.reader.Search(context.Background(), args[0], filters, searchLimit, searchOrderBy)
	if err != nil {
		return err
	}
	if jsonOut {
		return emitJSON(entities)
	}
	printEntityTable(args[0], entities)
	return nil
}

var getAtCmd = &cobra.Command{
	Use:   "get-at <id> <timestamp>",
	Short: "Show an entity as it was at a moment in time",
	Long: `Get-at answers "what did we believe about this entity at time T":
the version whose validity interval covers the timestamp. Timestamps
are RFC 3339, a bare date, or the literal "now".`,
	Example: `  engram get-at 4f2a91c0 2026-03-01T12:00:00Z
  engram get-at 4f2a91c0 2026-03-01`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		at, err := parseTime(args[1])
		if err != nil {
			return err
		}
		es, err := a.reader.AtTime(context.Background(), args[0], at)
		if err != nil {
			return err
		}
		if es == nil {
			if jsonOut {
				return emitJSON(nil)
			}
			fmt.Printf("No state of %s was valid at %s\n", args[0], formatTime(at))
			return nil
		}
		if jsonOut {
			return emitJSON(es)
		}
		printEntityDetail(*es)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "List every version of an entity, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		states, err := a.reader.History(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOut {
			return emitJSON(states)
		}
		printHistoryTable(args[0], states)
		return nil
	},
}

var changelogCmd = &cobra.Command{
	Use:   "changelog <id>",
	Short: "Show property-level deltas between consecutive versions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		diffs, err := a.reader.Changelog(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOut {
			return emitJSON(diffs)
		}
		if len(diffs) == 0 {
			fmt.Printf("No changes recorded for %s (single version)\n", args[0])
			return nil
		}
		for _, d := range diffs {
			fmt.Println(renderDiff(d))
		}
		return nil
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <id> <from-version> <to-version>",
	Short: "Compare two versions of an entity property by property",
	Example: `  engram diff 4f2a91c0 1 3
  engram diff 4f2a91c0 3 1   # reversed: old/new swap sides`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		fromV, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid from-version %q", args[1])
		}
		toV, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid to-version %q", args[2])
		}

		d, err := a.reader.Diff(context.Background(), args[0], fromV, toV)
		if err != nil {
			return err
		}
		if jsonOut {
			return emitJSON(d)
		}
		fmt.Println(renderDiff(d))
		return nil
	},
}

var snapshotLabels []string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <timestamp>",
	Short: "Reconstruct the whole graph as of a moment in time",
	Long: `Snapshot returns every entity state and every active edge whose
validity covered the timestamp. Entities deleted before or created
after the moment are absent, exactly as the graph stood then.`,
	Example: `  engram snapshot 2026-03-01T00:00:00Z
  engram snapshot now --label Service --label Endpoint`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		at, err := parseTime(args[0])
		if err != nil {
			return err
		}
		snap, err := a.reader.SnapshotAt(context.Background(), at, snapshotLabels)
		if err != nil {
			return err
		}
		if jsonOut {
			return emitJSON(snap)
		}
		printSnapshot(snap)
		return nil
	},
}

var (
	sinceLabels []string
	sinceActors []string
	sinceLimit  int
)

var changesSinceCmd = &cobra.Command{
	Use:   "changes-since <timestamp>",
	Short: "List entities touched after a cutoff, most recent first",
	Long: `Changes-since is the catch-up query for an agent returning to the
graph: every entity with audit activity after the cutoff, tagged with
who touched it last and how many times.`,
	Example: `  engram changes-since 2026-03-01T09:00:00Z
  engram changes-since 2026-03-01 --label Service --actor-filter planner`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		since, err := parseTime(args[0])
		if err != nil {
			return err
		}
		changes, err := a.reader.ChangesSince(context.Background(), since, sinceLabels, sinceActors, sinceLimit)
		if err != nil {
			return err
		}
		if jsonOut {
			return emitJSON(changes)
		}
		printChangesTable(changes)
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit <id>",
	Short: "Show the append-only audit trail of an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		entries, err := a.reader.AuditLog(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOut {
			return emitJSON(entries)
		}
		printAuditTable(args[0], entries)
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Show the compiled schema (labels, properties, edges)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		compiled := a.registry.Compiled()
		if jsonOut {
			return emitJSON(compiled)
		}
		printSchema(compiled)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store counts: entities, versions, edges, audit entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		stats, err := a.store.Stats(context.Background())
		if err != nil {
			return err
		}
		if jsonOut {
			return emitJSON(stats)
		}
		printStats(stats)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringArrayVar(&searchWhere, "where", nil, "Property filter (repeatable): prop=value, prop~value, prop>=value ...")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum results (0 = no limit)")
	searchCmd.Flags().StringVar(&searchOrderBy, "order-by", "", "Property to sort by")
	snapshotCmd.Flags().StringArrayVar(&snapshotLabels, "label", nil, "Restrict to a label (repeatable)")
	changesSinceCmd.Flags().StringArrayVar(&sinceLabels, "label", nil, "Restrict to a label (repeatable)")
	changesSinceCmd.Flags().StringArrayVar(&sinceActors, "actor-filter", nil, "Restrict to an actor (repeatable)")
	changesSinceCmd.Flags().IntVar(&sinceLimit, "limit", 0, "Maximum results (0 = no limit)")
}

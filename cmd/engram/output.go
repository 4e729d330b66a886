package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"engram/internal/memory"
	"engram/internal/schema"
	"engram/internal/store"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	addedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
	removeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935"))
)

// emitJSON writes v as indented JSON to stdout.
func emitJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// simpleTable renders static tabular data with padded columns.
type simpleTable struct {
	title   string
	headers []string
	rows    [][]string
}

func newTable(title string, headers ...string) *simpleTable {
	return &simpleTable{title: title, headers: headers}
}

func (t *simpleTable) addRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *simpleTable) render() string {
	var sb strings.Builder
	if t.title != "" {
		sb.WriteString(titleStyle.Render(t.title))
		sb.WriteString("\n")
	}
	if len(t.rows) == 0 {
		sb.WriteString(mutedStyle.Render("(empty)"))
		sb.WriteString("\n")
		return sb.String()
	}

	colWidths := make([]int, len(t.headers))
	for i, h := range t.headers {
		colWidths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(colWidths) {
				if w := lipgloss.Width(cell); w > colWidths[i] {
					colWidths[i] = w
				}
			}
		}
	}
	// Width includes the cell padding.
	for i := range colWidths {
		colWidths[i] += 2
	}

	for i, h := range t.headers {
		sb.WriteString(headerStyle.Width(colWidths[i]).Render(h))
		if i < len(t.headers)-1 {
			sb.WriteString(mutedStyle.Render("|"))
		}
	}
	sb.WriteString("\n")

	totalWidth := len(t.headers) - 1
	for _, w := range colWidths {
		totalWidth += w
	}
	sb.WriteString(mutedStyle.Render(strings.Repeat("-", totalWidth)))
	sb.WriteString("\n")

	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(colWidths) {
				sb.WriteString(cellStyle.Width(colWidths[i]).Render(cell))
				if i < len(row)-1 {
					sb.WriteString(mutedStyle.Render("|"))
				}
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

// formatValue renders a property value on a single line.
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}

// propsSummary joins properties into one stable, truncated line.
func propsSummary(props map[string]interface{}) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(props[k])))
	}
	return truncate(strings.Join(parts, " "), 72)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func printEntityTable(label string, entities []store.EntityState) {
	t := newTable(fmt.Sprintf("%s (%d)", label, len(entities)), "ID", "VER", "UPDATED", "ACTOR", "PROPERTIES")
	for _, es := range entities {
		t.addRow(
			es.Entity.ID,
			fmt.Sprintf("%d", es.State.Version),
			formatTime(es.State.ValidFrom),
			es.State.Actor,
			propsSummary(es.State.Props),
		)
	}
	fmt.Print(t.render())
}

func printEntityDetail(es store.EntityState) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s %s", es.Entity.Label, es.Entity.ID)))
	fmt.Printf("  version:    %d\n", es.State.Version)
	fmt.Printf("  valid from: %s\n", formatTime(es.State.ValidFrom))
	if es.State.ValidTo != nil {
		fmt.Printf("  valid to:   %s\n", formatTime(*es.State.ValidTo))
	}
	fmt.Printf("  actor:      %s\n", es.State.Actor)
	fmt.Printf("  created:    %s\n", formatTime(es.Entity.CreatedAt))
	if es.Entity.DeletedAt != nil {
		fmt.Println(removeStyle.Render(fmt.Sprintf("  deleted:    %s by %s", formatTime(*es.Entity.DeletedAt), es.Entity.DeletedBy)))
	}
	keys := make([]string, 0, len(es.State.Props))
	for k := range es.State.Props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Println("  properties:")
	for _, k := range keys {
		fmt.Printf("    %s: %s\n", k, formatValue(es.State.Props[k]))
	}
}

func printHistoryTable(id string, states []store.State) {
	t := newTable(fmt.Sprintf("History of %s (%d versions)", id, len(states)), "VER", "VALID FROM", "VALID TO", "ACTOR", "PROPERTIES")
	for _, s := range states {
		validTo := "current"
		if s.ValidTo != nil {
			validTo = formatTime(*s.ValidTo)
		}
		t.addRow(
			fmt.Sprintf("%d", s.Version),
			formatTime(s.ValidFrom),
			validTo,
			s.Actor,
			propsSummary(s.Props),
		)
	}
	fmt.Print(t.render())
}

// renderDiff formats one version-to-version delta: + for added
// properties, - for removed, ~ for changed.
func renderDiff(d memory.StateDiff) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s  v%d -> v%d", d.EntityID, d.FromVersion, d.ToVersion)))
	sb.WriteString("\n")
	if len(d.Changes) == 0 {
		sb.WriteString(mutedStyle.Render("  (no property changes)"))
		return sb.String()
	}
	for _, c := range d.Changes {
		switch {
		case c.Old == nil:
			sb.WriteString(addedStyle.Render(fmt.Sprintf("  + %s: %s", c.Property, formatValue(c.New))))
		case c.New == nil:
			sb.WriteString(removeStyle.Render(fmt.Sprintf("  - %s: %s", c.Property, formatValue(c.Old))))
		default:
			sb.WriteString(fmt.Sprintf("  ~ %s: %s -> %s", c.Property, formatValue(c.Old), formatValue(c.New)))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func printSnapshot(snap store.Snapshot) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("Graph at %s", formatTime(snap.At))))
	fmt.Printf("%d entities, %d edges\n\n", len(snap.Entities), len(snap.Edges))

	byLabel := make(map[string][]store.EntityState)
	labels := []string{}
	for _, es := range snap.Entities {
		if _, seen := byLabel[es.Entity.Label]; !seen {
			labels = append(labels, es.Entity.Label)
		}
		byLabel[es.Entity.Label] = append(byLabel[es.Entity.Label], es)
	}
	sort.Strings(labels)
	for _, label := range labels {
		printEntityTable(label, byLabel[label])
		fmt.Println()
	}

	if len(snap.Edges) > 0 {
		t := newTable("Edges", "FROM", "TYPE", "TO", "SINCE")
		for _, rel := range snap.Edges {
			t.addRow(rel.FromID, rel.Type, rel.ToID, formatTime(rel.ValidFrom))
		}
		fmt.Print(t.render())
	}
}

func printChangesTable(changes []store.ChangeSummary) {
	t := newTable(fmt.Sprintf("Changed entities (%d)", len(changes)), "ID", "LABEL", "LAST ACTION", "ACTOR", "WHEN", "EDITS")
	for _, c := range changes {
		t.addRow(
			c.EntityID,
			c.Label,
			c.LastAction,
			c.LastActor,
			formatTime(c.LastActivity),
			fmt.Sprintf("%d", c.AuditCount),
		)
	}
	fmt.Print(t.render())
}

func printAuditTable(id string, entries []store.AuditEntry) {
	t := newTable(fmt.Sprintf("Audit trail of %s (%d entries)", id, len(entries)), "TIMESTAMP", "ACTION", "ACTOR", "CHANGES")
	for _, e := range entries {
		t.addRow(formatTime(e.Timestamp), e.Action, e.Actor, truncate(e.Changes, 60))
	}
	fmt.Print(t.render())
}

func printSchema(cs schema.CompiledSchema) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("Schema: %d labels, %d edge types", len(cs.Nodes), len(cs.Edges))))
	fmt.Println()
	for _, node := range cs.Nodes {
		fmt.Println(titleStyle.Render(node.Label))
		props := make([]string, 0, len(node.Properties))
		for name := range node.Properties {
			props = append(props, name)
		}
		sort.Strings(props)
		for _, name := range props {
			def := node.Properties[name]
			line := fmt.Sprintf("  %-16s %s", name, def.Kind)
			if def.Required {
				line += " (required)"
			}
			if len(def.Values) > 0 {
				line += " [" + strings.Join(def.Values, ", ") + "]"
			}
			if def.Default != nil {
				line += fmt.Sprintf(" default=%s", formatValue(def.Default))
			}
			fmt.Println(line)
		}
		if len(node.UniqueKeys) > 0 {
			fmt.Println(mutedStyle.Render("  unique: " + strings.Join(node.UniqueKeys, ", ")))
		}
		fmt.Println()
	}
	if len(cs.Edges) > 0 {
		t := newTable("Edges", "TYPE", "FROM", "TO")
		for _, e := range cs.Edges {
			t.addRow(e.Type, e.From, e.To)
		}
		fmt.Print(t.render())
	}
}

func printStats(stats store.Stats) {
	fmt.Println(titleStyle.Render("Store statistics"))
	fmt.Printf("  entities:      %d (%d deleted)\n", stats.Entities, stats.Deleted)
	fmt.Printf("  versions:      %d\n", stats.States)
	fmt.Printf("  active edges:  %d\n", stats.ActiveEdges)
	fmt.Printf("  audit entries: %d\n", stats.AuditEntries)
	if len(stats.ByLabel) > 0 {
		fmt.Println()
		labels := make([]string, 0, len(stats.ByLabel))
		for label := range stats.ByLabel {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		t := newTable("By label", "LABEL", "LIVE ENTITIES")
		for _, label := range labels {
			t.addRow(label, fmt.Sprintf("%d", stats.ByLabel[label]))
		}
		fmt.Print(t.render())
	}
}

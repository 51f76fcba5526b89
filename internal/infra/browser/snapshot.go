package browser

import (
	"fmt"
	"regexp"
	"strings"
)

const emptySnapshot = "(empty page)"

// snapshotLine matches "<indent>- <role>[ "<name>"]<rest>".
var snapshotLine = regexp.MustCompile(`^(\s*-\s+)(\w+)(?:\s+"([^"]*)")?(.*)$`)

// Roles that never get their own line; their children are lifted.
var transparentRoles = map[string]bool{
	"none":          true,
	"generic":       true,
	"InlineTextBox": true,
	"LineBreak":     true,
	"presentation":  true,
}

var rootRoles = map[string]bool{
	"RootWebArea": true,
	"WebArea":     true,
}

// refEntry addresses one element by role, accessible name and the number
// of earlier snapshot lines sharing the same role and name.
type refEntry struct {
	Role       string
	Name       string
	Occurrence int
}

func (e refEntry) describe() string {
	if e.Name == "" {
		return e.Role
	}
	return e.Role + ` "` + e.Name + `"`
}

// refTable is replaced wholesale by every snapshot. pageID records the page
// the snapshot was taken on.
type refTable struct {
	pageID  string
	entries map[int]refEntry
}

func (t *refTable) lookup(ref int) (refEntry, bool) {
	if t == nil {
		return refEntry{}, false
	}
	entry, ok := t.entries[ref]
	return entry, ok
}

// renderTree renders the accessibility tree as an indented outline, one
// element per line.
func renderTree(root *AXNode) string {
	if root == nil {
		return ""
	}
	var b strings.Builder
	nodes := []*AXNode{root}
	if rootRoles[root.Role] {
		nodes = root.Children
	}
	for _, node := range nodes {
		renderNode(&b, node, 0)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderNode(b *strings.Builder, node *AXNode, depth int) {
	if node == nil {
		return
	}
	if !isRendered(node) {
		for _, child := range node.Children {
			renderNode(b, child, depth)
		}
		return
	}

	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString("- ")
	role := ariaRole(node)
	name := displayName(node)
	if role == "text" {
		b.WriteString("text: ")
		b.WriteString(name)
		b.WriteByte('\n')
		return
	}

	b.WriteString(role)
	if name != "" {
		// Written raw so annotate keys refs by the same text matchElements
		// compares against.
		b.WriteString(` "`)
		b.WriteString(name)
		b.WriteString(`"`)
	}
	b.WriteString(renderAttributes(node.Properties))

	value := collapseSpace(node.Value)
	hasChildren := hasRenderedDescendant(node)
	switch {
	case value != "" && value != name:
		b.WriteString(": ")
		b.WriteString(value)
	case hasChildren:
		b.WriteString(":")
	}
	b.WriteByte('\n')

	for _, child := range node.Children {
		renderNode(b, child, depth+1)
	}
}

func renderAttributes(props map[string]string) string {
	if len(props) == 0 {
		return ""
	}
	var b strings.Builder
	switch props["checked"] {
	case "true":
		b.WriteString(" [checked]")
	case "mixed":
		b.WriteString(" [checked=mixed]")
	}
	if props["disabled"] == "true" {
		b.WriteString(" [disabled]")
	}
	if props["expanded"] == "true" {
		b.WriteString(" [expanded]")
	}
	if level := props["level"]; level != "" {
		fmt.Fprintf(&b, " [level=%s]", level)
	}
	if props["pressed"] == "true" {
		b.WriteString(" [pressed]")
	}
	if props["selected"] == "true" {
		b.WriteString(" [selected]")
	}
	return b.String()
}

func hasRenderedDescendant(node *AXNode) bool {
	for _, child := range node.Children {
		if isRendered(child) || hasRenderedDescendant(child) {
			return true
		}
	}
	return false
}

func isRendered(node *AXNode) bool {
	if node.Ignored || transparentRoles[node.Role] || rootRoles[node.Role] {
		return false
	}
	if node.Role == "StaticText" && displayName(node) == "" {
		return false
	}
	return node.Role != ""
}

func ariaRole(node *AXNode) string {
	if node.Role == "StaticText" {
		return "text"
	}
	return node.Role
}

// displayName is the name as it appears in a snapshot line. Quotes are
// swapped so the name can be delimited unambiguously.
func displayName(node *AXNode) string {
	return strings.ReplaceAll(collapseSpace(node.Name), `"`, "'")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// annotate injects a [ref=N] marker into every element line of text and
// returns the entries needed to resolve those refs. Numbering starts at 1.
// Text lines are not elements and get no ref.
func annotate(text string) (string, map[int]refEntry) {
	entries := make(map[int]refEntry)
	occurrences := make(map[string]int)
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	next := 1

	for _, line := range lines {
		m := snapshotLine.FindStringSubmatchIndex(line)
		if m == nil {
			out = append(out, line)
			continue
		}
		prefix := line[m[2]:m[3]]
		role := line[m[4]:m[5]]
		named := m[6] >= 0
		name := ""
		if named {
			name = line[m[6]:m[7]]
		}
		rest := line[m[8]:m[9]]
		if role == "text" && !named && strings.HasPrefix(rest, ":") {
			out = append(out, line)
			continue
		}

		key := role + "::" + name
		nth := occurrences[key]
		occurrences[key] = nth + 1

		ref := next
		next++
		entries[ref] = refEntry{Role: role, Name: name, Occurrence: nth}

		var b strings.Builder
		b.WriteString(prefix)
		b.WriteString(role)
		if named {
			b.WriteString(` "`)
			b.WriteString(name)
			b.WriteString(`"`)
		}
		fmt.Fprintf(&b, " [ref=%d]", ref)
		if strings.TrimSpace(rest) != "" {
			b.WriteString(rest)
		}
		out = append(out, b.String())
	}
	return strings.Join(out, "\n"), entries
}

// matchElements returns the rendered nodes selected by entry, in document
// order. Nodes are keyed by role and display name exactly as annotate keys
// them, so an unnamed entry only matches unnamed nodes.
func matchElements(root *AXNode, entry refEntry) []*AXNode {
	var matches []*AXNode
	var walk func(node *AXNode)
	walk = func(node *AXNode) {
		if node == nil {
			return
		}
		if isRendered(node) && ariaRole(node) == entry.Role {
			if displayName(node) == entry.Name {
				matches = append(matches, node)
			}
		}
		for _, child := range node.Children {
			walk(child)
		}
	}
	walk(root)
	return matches
}

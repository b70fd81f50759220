// Package generate builds deterministic cause-and-effect trees from
// incident descriptions.
//
// The generator is a placeholder expansion, not text analysis: it produces
// fixed category and sub-cause labels whose count depends only on the
// analysis level. Same input, same output, no I/O. Real inference can be
// swapped in behind the same signature later.
package generate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/safetydesk/causemap/pkg/tree"
)

// Analysis level bounds and the canonical fallback used when a stored
// level label cannot be parsed.
const (
	MinLevel     = 1
	MaxLevel     = 5
	DefaultLevel = 3
)

// MaxRootNameLen is the display-safe cap for the root node label.
// Longer descriptions are truncated with a trailing ellipsis marker.
const MaxRootNameLen = 30

const ellipsis = "..."

// categories is the fixed ordered list of first-layer causal factors.
// The generator takes min(5, level+2) of these, in order.
var categories = []string{
	"Human Factors",
	"Equipment",
	"Environment",
	"Procedures",
	"Management",
}

// subCauses is the fixed ordered list of second-layer factors, distributed
// round-robin across the first layer when level >= 2.
var subCauses = []string{
	"Insufficient training",
	"Equipment wear",
	"Poor visibility",
	"Missing procedure",
	"Time pressure",
	"Inadequate supervision",
}

// Generate expands an incident description into a flat causal-factor tree.
//
// The result always starts with the root node (key 1, no parent, name =
// the truncated description), followed by min(5, level+2) first-layer
// category nodes with strictly increasing keys from 2. When level >= 2 a
// second layer of min(firstLayer*2, 6) sub-cause nodes is distributed
// round-robin across the first layer.
//
// Generate is pure and total: empty text and out-of-range levels still
// produce a valid tree (the level is clamped, the root name may be empty
// after trimming).
func Generate(text string, level int) []tree.Node {
	level = ClampLevel(level)

	nodes := []tree.Node{{Key: 1, Name: Truncate(strings.TrimSpace(text))}}
	next := 2

	firstLayer := min(len(categories), level+2)
	firstKeys := make([]int, 0, firstLayer)
	for i := 0; i < firstLayer; i++ {
		nodes = append(nodes, tree.Node{
			Key:      next,
			Name:     categories[i],
			Parent:   1,
			Category: categories[i],
		})
		firstKeys = append(firstKeys, next)
		next++
	}

	if level >= 2 {
		second := min(firstLayer*2, len(subCauses))
		for i := 0; i < second; i++ {
			nodes = append(nodes, tree.Node{
				Key:    next,
				Name:   subCauses[i],
				Parent: firstKeys[i%firstLayer],
			})
			next++
		}
	}

	return nodes
}

// ClampLevel restricts an analysis level to [MinLevel, MaxLevel].
func ClampLevel(level int) int {
	return min(MaxLevel, max(MinLevel, level))
}

// Truncate caps a label at MaxRootNameLen characters, replacing the tail
// with an ellipsis marker when the input is longer. Characters are runes,
// not bytes, so multi-byte text is never cut mid-sequence.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxRootNameLen {
		return s
	}
	return string([]rune(s)[:MaxRootNameLen-len(ellipsis)]) + ellipsis
}

// levelDescriptions maps each analysis level to its label description.
var levelDescriptions = map[int]string{
	1: "Quick scan",
	2: "Basic analysis",
	3: "Standard analysis",
	4: "Detailed analysis",
	5: "Full root cause analysis",
}

// levelLabelRe recovers the numeric level from a stored label. The match
// is case-insensitive on the literal word "Level".
var levelLabelRe = regexp.MustCompile(`(?i)level\s*(\d+)`)

// FormatLevelLabel renders an analysis level as its stored text form,
// "Level N - <description>". The level is clamped first.
func FormatLevelLabel(level int) string {
	level = ClampLevel(level)
	return fmt.Sprintf("Level %d - %s", level, levelDescriptions[level])
}

// ParseLevelLabel recovers the numeric level from a stored label.
// Labels without a recognizable "Level N" fall back to DefaultLevel; the
// recovered number is clamped to the valid range.
func ParseLevelLabel(label string) int {
	m := levelLabelRe.FindStringSubmatch(label)
	if m == nil {
		return DefaultLevel
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return DefaultLevel
	}
	return ClampLevel(n)
}

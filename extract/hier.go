package extract

import (
	"regexp"
	"strings"
)

// Indentation hierarchy. Nomenclature cells encode assembly depth as leading
// dots on the first visible line ("." = child, ".." = grandchild). The level
// stack per figure links each row to its parent at level-1; placeholder zeros
// mark levels that were never seen so a level skip after a context break does
// not fabricate a parent.

var (
	cjkRE            = regexp.MustCompile(`[\x{4e00}-\x{9fff}]`)
	nomLeadingDotsRE = regexp.MustCompile(`^\s*(\.+)\s*`)
)

var watermarkLeading = map[string]struct{}{
	"OF":   {},
	"DATE": {},
	"OUT":  {},
}

// CleanWatermarks removes known watermark noise from a nomenclature cell:
// any line containing CJK characters, then leading lines equal to OF, DATE
// or OUT.
func CleanWatermarks(nomenclature string) string {
	var lines []string
	for _, ln := range strings.Split(nomenclature, "\n") {
		ln = strings.TrimRight(ln, " \t\r")
		if strings.TrimSpace(ln) == "" || cjkRE.MatchString(ln) {
			continue
		}
		lines = append(lines, ln)
	}
	for len(lines) > 0 {
		if _, ok := watermarkLeading[strings.ToUpper(strings.TrimSpace(lines[0]))]; !ok {
			break
		}
		lines = lines[1:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// NomLevelAndClean derives the hierarchy level from the leading dots of the
// first visible line and returns the text with those dots removed. Lines
// other than the first are left untouched.
func NomLevelAndClean(nomenclature string) (int, string) {
	text := strings.TrimRight(nomenclature, " \t\r\n")
	if text == "" {
		return 0, ""
	}
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t\r")
	}

	firstIdx := -1
	for i, ln := range lines {
		if strings.TrimSpace(ln) != "" {
			firstIdx = i
			break
		}
	}
	if firstIdx < 0 {
		return 0, ""
	}

	m := nomLeadingDotsRE.FindStringSubmatch(lines[firstIdx])
	if m == nil {
		return 0, strings.TrimSpace(text)
	}
	level := len(m[1])
	lines[firstIdx] = strings.TrimLeft(lines[firstIdx][len(m[0]):], " \t")
	return level, strings.TrimSpace(strings.Join(lines, "\n"))
}

// HierarchyTracker maintains a per-figure level stack of part IDs while rows
// are inserted in document order.
type HierarchyTracker struct {
	stacks map[string][]int64
}

// NewHierarchyTracker returns an empty tracker.
func NewHierarchyTracker() *HierarchyTracker {
	return &HierarchyTracker{stacks: make(map[string][]int64)}
}

// Parent returns the part ID at level-1 of the figure's stack, if the stack
// is deep enough and that slot is not a placeholder. A short stack means the
// parent context was broken, so no parent is linked rather than guessing.
func (h *HierarchyTracker) Parent(figKey string, level int) (int64, bool) {
	if level <= 0 {
		return 0, false
	}
	stack := h.stacks[figKey]
	if len(stack) < level {
		return 0, false
	}
	id := stack[level-1]
	if id == 0 {
		return 0, false
	}
	return id, true
}

// Push records the part ID at its level and truncates deeper levels. Missing
// intermediate levels are padded with zero placeholders.
func (h *HierarchyTracker) Push(figKey string, level int, partID int64) {
	stack := h.stacks[figKey]
	for len(stack) <= level {
		stack = append(stack, 0)
	}
	stack[level] = partID
	h.stacks[figKey] = stack[:level+1]
}

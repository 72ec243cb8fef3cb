// Package control holds the condition state driven by control commands.
//
// Everything here is owned by the processing goroutine: the emission
// stage applies drained commands and reads the tables in the same
// cycle, so no locking is needed or done.
package control

import "sort"

// NoStimClass marks "no condition selected".
const NoStimClass = -1

// Tables maps condition names to image ids and indices.  The name→index
// and index→name maps are kept inverse to each other, and every name
// with an index also has an image id entry.
type Tables struct {
	design      string
	imageIDs    map[string]string
	indexByName map[string]int
	nameByIndex map[int]string
	stimClasses []int
	current     int
}

// NewTables returns empty tables with no condition selected.
func NewTables() *Tables {
	t := &Tables{}
	t.Clear()
	return t
}

// Clear drops every condition, the active classes and the design name.
func (t *Tables) Clear() {
	t.design = ""
	t.imageIDs = make(map[string]string)
	t.indexByName = make(map[string]int)
	t.nameByIndex = make(map[int]string)
	t.stimClasses = t.stimClasses[:0]
	t.current = NoStimClass
}

// SetDesign names the current design.
func (t *Tables) SetDesign(name string) { t.design = name }

// Design returns the current design name.
func (t *Tables) Design() string { return t.design }

// Len returns the number of conditions.
func (t *Tables) Len() int { return len(t.nameByIndex) }

// AddCondition registers name with imageID and returns its index.
// Re-adding a known name updates its image id and keeps its index.
func (t *Tables) AddCondition(name, imageID string) int {
	if idx, ok := t.indexByName[name]; ok {
		t.imageIDs[name] = imageID
		return idx
	}
	idx := len(t.nameByIndex)
	t.imageIDs[name] = imageID
	t.indexByName[name] = idx
	t.nameByIndex[idx] = name
	return idx
}

// ConditionIndex looks up a condition by name.
func (t *Tables) ConditionIndex(name string) (int, bool) {
	idx, ok := t.indexByName[name]
	return idx, ok
}

// ConditionName looks up a condition by index.
func (t *Tables) ConditionName(idx int) (string, bool) {
	name, ok := t.nameByIndex[idx]
	return name, ok
}

// ImageID returns the image id registered for name.
func (t *Tables) ImageID(name string) (string, bool) {
	id, ok := t.imageIDs[name]
	return id, ok
}

// Names returns condition names ordered by index.
func (t *Tables) Names() []string {
	idx := make([]int, 0, len(t.nameByIndex))
	for i := range t.nameByIndex {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]string, len(idx))
	for i, k := range idx {
		out[i] = t.nameByIndex[k]
	}
	return out
}

// SetStimClasses replaces the active classes with the known indices in
// classes, keeping their order and dropping repeats.  Indices with no
// condition are returned and not stored.  A selected condition that is
// no longer active is deselected.
func (t *Tables) SetStimClasses(classes []int) (rejected []int) {
	t.stimClasses = t.stimClasses[:0]
	seen := make(map[int]bool, len(classes))
	for _, c := range classes {
		if _, ok := t.nameByIndex[c]; !ok {
			rejected = append(rejected, c)
			continue
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		t.stimClasses = append(t.stimClasses, c)
	}
	if t.current != NoStimClass && !seen[t.current] {
		t.current = NoStimClass
	}
	return rejected
}

// StimClasses returns a copy of the active classes.
func (t *Tables) StimClasses() []int {
	return append([]int(nil), t.stimClasses...)
}

// SelectCondition makes idx the current condition.  It fails for an
// unknown index, or for one outside the active classes when any are
// set.  NoStimClass always succeeds and clears the selection.
func (t *Tables) SelectCondition(idx int) bool {
	if idx == NoStimClass {
		t.current = NoStimClass
		return true
	}
	if _, ok := t.nameByIndex[idx]; !ok {
		return false
	}
	if len(t.stimClasses) > 0 && !contains(t.stimClasses, idx) {
		return false
	}
	t.current = idx
	return true
}

// Current returns the selected condition, or NoStimClass and "".
func (t *Tables) Current() (int, string) {
	if t.current == NoStimClass {
		return NoStimClass, ""
	}
	return t.current, t.nameByIndex[t.current]
}

func contains(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

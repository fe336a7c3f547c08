package models

import (
	"fmt"
	"strings"

	"github.com/mgutz/ansi"
)

var chSame = ansi.ColorCode("default:default")
var chNew = ansi.ColorCode("default+bu:default")

type Change struct {
	Old, New uint64
	Name     string
}

func NewChange(name string, val, oldVal uint64) *Change {
	return &Change{Old: oldVal, New: val, Name: name}
}

func (c *Change) Changed() bool {
	return c.Old != c.New
}

// String highlights only the hex digits that differ when color is set.
func (c *Change) String(bsz int, color bool) string {
	hexFmt := fmt.Sprintf("%%0%dx", bsz)
	name := fmt.Sprintf("%6s", c.Name)
	if !c.Changed() {
		return fmt.Sprintf("  %s 0x"+hexFmt, name, c.New)
	}
	if !color {
		return fmt.Sprintf("+ %s 0x"+hexFmt, name, c.New)
	}
	s1, s2 := fmt.Sprintf(hexFmt, c.New), fmt.Sprintf(hexFmt, c.Old)
	out := []string{"  ", chNew, name, ansi.Reset, " 0x"}
	for i := range s1 {
		if s1[i] != s2[i] {
			out = append(out, chNew, s1[i:i+1])
		} else {
			out = append(out, chSame, s1[i:i+1])
		}
	}
	out = append(out, ansi.Reset)
	return strings.Join(out, "")
}

type Changes struct {
	Bsz     int
	Changes []*Change
}

func (cs *Changes) Changed() []*Change {
	var ret []*Change
	for _, c := range cs.Changes {
		if c.Changed() {
			ret = append(ret, c)
		}
	}
	return ret
}

// String prints cs in rows of three.
func (cs *Changes) String(color bool) string {
	const cols = 3
	var out []string
	for i := 0; i < len(cs.Changes); i += cols {
		end := i + cols
		if end > len(cs.Changes) {
			end = len(cs.Changes)
		}
		row := make([]string, 0, cols)
		for _, c := range cs.Changes[i:end] {
			row = append(row, c.String(cs.Bsz, color))
		}
		out = append(out, strings.Join(row, " "))
	}
	return strings.Join(out, "\n")
}

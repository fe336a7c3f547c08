package models

import (
	"encoding/hex"
	"fmt"
	"strings"
)

func printable(p []byte) string {
	o := make([]byte, len(p))
	for i, c := range p {
		if c >= 0x20 && c <= 0x7e {
			o[i] = c
		} else {
			o[i] = '.'
		}
	}
	return string(o)
}

// HexBytes hex-encodes p, padded on the left to width bytes.
func HexBytes(p []byte, width int) string {
	s := hex.EncodeToString(p)
	if pad := width*2 - len(s); pad > 0 {
		s = strings.Repeat(" ", pad) + s
	}
	return s
}

// HexDump formats mem as 8-byte groups, four per line, with an ascii column.
func HexDump(base uint64, mem []byte) []string {
	const group, perLine = 8, 4
	var out []string
	for i := 0; i < len(mem); i += group * perLine {
		line := mem[i:]
		if len(line) > group*perLine {
			line = line[:group*perLine]
		}
		var blocks, tail []string
		for j := 0; j < perLine; j++ {
			if j*group >= len(line) {
				blocks = append(blocks, strings.Repeat(" ", group*2))
				tail = append(tail, strings.Repeat(" ", group))
				continue
			}
			end := (j + 1) * group
			if end > len(line) {
				end = len(line)
			}
			block := line[j*group : end]
			pad := group - len(block)
			blocks = append(blocks, hex.EncodeToString(block)+strings.Repeat("  ", pad))
			tail = append(tail, printable(block)+strings.Repeat(" ", pad))
		}
		out = append(out, fmt.Sprintf("0x%016x: %s [%s]", base+uint64(i), strings.Join(blocks, " "), strings.Join(tail, " ")))
	}
	return out
}

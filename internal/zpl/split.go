// Package zpl segments raw label files into self-terminated print blocks.
package zpl

import (
	"strings"
	"unicode"
)

// Marker ends one self-contained label.
const Marker = "^XZ"

// Block is one label command stream, always ending in Marker.
type Block string

// Bytes returns the block as it goes on the wire.
func (b Block) Bytes() []byte { return []byte(b) }

// Split partitions raw on Marker and returns the non-blank partitions,
// re-terminated, in source order. Leading whitespace (the gap after the
// previous label) is dropped; whitespace inside a label, including right
// before its marker, is kept. Whitespace between or after labels never yields
// a block.
func Split(raw string) []Block {
	parts := strings.Split(raw, Marker)
	blocks := make([]Block, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		blocks = append(blocks, Block(strings.TrimLeftFunc(part, unicode.IsSpace)+Marker))
	}
	return blocks
}

// Count is len(Split(raw)) without building the blocks.
func Count(raw string) int {
	n := 0
	for _, part := range strings.Split(raw, Marker) {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	return n
}

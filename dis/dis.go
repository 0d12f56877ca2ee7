// Package dis renders compiled bytecode as human-readable assembly.
package dis

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/nodeforge/vscript/asm"
	"github.com/nodeforge/vscript/op"
)

type config struct {
	color   bool
	entries map[uint32][]string
}

// Option configures a disassembly.
type Option func(*config)

// WithColor toggles ANSI color in the output.
func WithColor(enabled bool) Option {
	return func(c *config) {
		c.color = enabled
	}
}

// WithEntry annotates a byte offset with an entry-point name.
func WithEntry(name string, offset uint32) Option {
	return func(c *config) {
		c.entries[offset] = append(c.entries[offset], name)
	}
}

// Disassemble writes one line per instruction: offset, mnemonic and
// operand. Jump and call operands are rendered as target offsets; offsets
// referenced as entry points are prefixed with a label line.
func Disassemble(out io.Writer, bytecode []byte, opts ...Option) error {
	cfg := config{entries: map[uint32][]string{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	mnemonic := fmt.Sprintf
	operand := fmt.Sprintf
	label := fmt.Sprintf
	if cfg.color {
		mnemonic = color.New(color.FgCyan).Sprintf
		operand = color.New(color.FgYellow).Sprintf
		label = color.New(color.FgGreen, color.Bold).Sprintf
	}

	// Collect jump targets so they can be marked inline.
	targets := map[uint32]bool{}
	it := asm.NewIter(bytecode)
	for {
		ins, ok := it.Next()
		if !ok {
			break
		}
		if op.GetInfo(ins.Op).IsLabel {
			targets[uint32(ins.Operand)] = true
		}
	}

	it = asm.NewIter(bytecode)
	end := 0
	for {
		ins, ok := it.Next()
		if !ok {
			break
		}
		info := op.GetInfo(ins.Op)
		if info.Name == "" {
			return fmt.Errorf("unknown opcode %d at offset %d", ins.Op, ins.Offset)
		}

		if names := cfg.entries[uint32(ins.Offset)]; len(names) > 0 {
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "%s\n", label("%s:", name))
			}
		}

		marker := " "
		if targets[uint32(ins.Offset)] {
			marker = ">"
		}
		fmt.Fprintf(out, "%s %04x  %s", marker, ins.Offset, mnemonic("%-8s", info.Name))
		switch {
		case info.IsLabel:
			fmt.Fprintf(out, "  %s", operand("-> %04x", uint32(ins.Operand)))
		case info.OperandWidth == 8:
			fmt.Fprintf(out, "  %s", operand("%#016x", ins.Operand))
		case info.OperandWidth == 4:
			fmt.Fprintf(out, "  %s", operand("%d", int32(uint32(ins.Operand))))
		}
		fmt.Fprintln(out)
		end = ins.Offset + op.Width(ins.Op)
	}
	if end != len(bytecode) {
		return fmt.Errorf("truncated instruction at offset %d", end)
	}
	return nil
}

package text

import (
	"fmt"
	"io"

	"github.com/dyuri/cplcconv/internal/model"
)

// Writer renders decoded files as human-readable reports
type Writer struct {
	w io.Writer
}

// NewWriter creates a new report writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteChain writes one tree block per entity. Names are looked up in lib
// by the entity's kind byte; lib may be nil.
func (w *Writer) WriteChain(chain *model.EntityChain, lib *model.Library) error {
	for i, e := range chain.Entities {
		if err := w.writeEntity(i, e, lib); err != nil {
			return fmt.Errorf("write entity %d: %w", i, err)
		}
	}
	return nil
}

// writeEntity writes a block of the form
//
//	Entity 0
//	  ├─ kind = 0x33
//	  ├─ name = Raider
//	  ├─    x = 640
//	  ├─    y = 1280
//	  └─ data = Unit{Team:2 Flags:257 Unknown:7 ActivationTimer:300}
func (w *Writer) writeEntity(index int, e model.Entity, lib *model.Library) error {
	_, err := fmt.Fprintf(w.w,
		"Entity %d\n"+
			"  ├─ kind = %#x\n"+
			"  ├─ name = %s\n"+
			"  ├─    x = %d\n"+
			"  ├─    y = %d\n"+
			"  └─ data = %s\n",
		index,
		e.Kind,
		lib.NameOf(uint16(e.Kind)),
		e.Placement.X,
		e.Placement.Y,
		FormatPayload(e.Payload),
	)
	return err
}

// FormatPayload renders a payload with its variant name and field names
func FormatPayload(p model.Payload) string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s%+v", p.Variant(), p)
}

// WriteHeader writes the CPLC header summary
func (w *Writer) WriteHeader(h model.Header) error {
	_, err := fmt.Fprintf(w.w,
		"Pointer bias: 0x%08x\n"+
			"File size:    %d\n"+
			"Lists:        0x%08x 0x%08x 0x%08x 0x%08x\n",
		h.FileOffsetBias, h.FileSize, h.List1, h.List2, h.List3, h.List4)
	return err
}

// WriteLibrary lists every creature in ascending id order
func (w *Writer) WriteLibrary(lib *model.Library) error {
	for _, id := range lib.IDs() {
		c, _ := lib.Lookup(id)
		if _, err := fmt.Fprintf(w.w, "0x%04x  %-24s size=%d properties=%d\n",
			c.ID, c.Name, c.SizeHint, len(c.Properties)); err != nil {
			return err
		}
		for _, p := range c.Properties {
			if err := w.writeProperty(p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) writeProperty(p model.Property) error {
	if _, err := fmt.Fprintf(w.w, "        %s (kind %#x)\n", p.Name, p.Kind); err != nil {
		return err
	}
	for i, item := range p.Values {
		branch := "├─"
		if i == len(p.Values)-1 {
			branch = "└─"
		}
		if _, err := fmt.Fprintf(w.w, "          %s %s = %d\n", branch, item.Name, item.Value); err != nil {
			return err
		}
	}
	return nil
}

// Package edits defines the changeset format carried by document
// transactions: a sequence of retain/insert/delete components applied
// left-to-right over the document text. Multi-writer convergence is the sync
// engine's job; this package only gives the log a deterministic replay.
package edits

import (
	"fmt"
	"strings"
)

// Op is a single step in a changeset. Exactly one field should be set.
type Op struct {
	Retain int    `json:"retain,omitempty"` // keep N bytes unchanged
	Insert string `json:"insert,omitempty"` // insert text at cursor
	Delete int    `json:"delete,omitempty"` // remove N bytes at cursor
}

func (o Op) IsRetain() bool { return o.Retain > 0 && o.Insert == "" && o.Delete == 0 }
func (o Op) IsInsert() bool { return o.Insert != "" }
func (o Op) IsDelete() bool { return o.Delete > 0 && o.Insert == "" }

// Changeset transforms a document. Components advance a cursor through the
// input; trailing retains may be omitted.
type Changeset struct {
	Ops []Op `json:"ops"`
}

// Retain appends a retain component, merging with a preceding retain.
func (c Changeset) Retain(n int) Changeset {
	if n <= 0 {
		return c
	}
	if last := len(c.Ops) - 1; last >= 0 && c.Ops[last].IsRetain() {
		c.Ops[last].Retain += n
		return c
	}
	c.Ops = append(c.Ops, Op{Retain: n})
	return c
}

// Insert appends an insert component, merging with a preceding insert.
func (c Changeset) Insert(text string) Changeset {
	if text == "" {
		return c
	}
	if last := len(c.Ops) - 1; last >= 0 && c.Ops[last].IsInsert() {
		c.Ops[last].Insert += text
		return c
	}
	c.Ops = append(c.Ops, Op{Insert: text})
	return c
}

// Delete appends a delete component, merging with a preceding delete.
func (c Changeset) Delete(n int) Changeset {
	if n <= 0 {
		return c
	}
	if last := len(c.Ops) - 1; last >= 0 && c.Ops[last].IsDelete() {
		c.Ops[last].Delete += n
		return c
	}
	c.Ops = append(c.Ops, Op{Delete: n})
	return c
}

// BaseLen returns the expected input document length.
func (c Changeset) BaseLen() int {
	n := 0
	for _, o := range c.Ops {
		if o.IsRetain() {
			n += o.Retain
		} else if o.IsDelete() {
			n += o.Delete
		}
	}
	return n
}

// TargetLen returns the document length after the changeset is applied.
func (c Changeset) TargetLen() int {
	n := 0
	for _, o := range c.Ops {
		if o.IsRetain() {
			n += o.Retain
		} else if o.IsInsert() {
			n += len(o.Insert)
		}
	}
	return n
}

// IsNoop returns true if the changeset makes no changes.
func (c Changeset) IsNoop() bool {
	for _, o := range c.Ops {
		if o.IsInsert() || o.IsDelete() {
			return false
		}
	}
	return true
}

// Apply applies the changeset to doc. A short document is an error; bytes
// past the last component are kept.
func (c Changeset) Apply(doc string) (string, error) {
	if c.BaseLen() > len(doc) {
		return "", fmt.Errorf("document length %d < changeset base length %d", len(doc), c.BaseLen())
	}
	var b strings.Builder
	pos := 0
	for _, o := range c.Ops {
		switch {
		case o.IsRetain():
			b.WriteString(doc[pos : pos+o.Retain])
			pos += o.Retain
		case o.IsInsert():
			b.WriteString(o.Insert)
		case o.IsDelete():
			pos += o.Delete
		}
	}
	b.WriteString(doc[pos:])
	return b.String(), nil
}

// Replace builds a changeset that substitutes length bytes at offset with text.
func Replace(offset, length int, text string) Changeset {
	return Changeset{}.Retain(offset).Delete(length).Insert(text)
}

// Compose merges two consecutive changesets into one whose effect equals
// applying a then b. b's base must match a's target.
func Compose(a, b Changeset) (Changeset, error) {
	// Trailing retains are implicit; pad a so the cursors line up when b
	// reaches past a's last component.
	as := expand(a, b.BaseLen()-a.TargetLen())
	bs := expand(b, 0)

	var out Changeset
	i, j := 0, 0
	for i < len(as) || j < len(bs) {
		switch {
		case i < len(as) && as[i].IsDelete():
			out = out.Delete(as[i].Delete)
			i++
		case j >= len(bs):
			out = appendOp(out, as[i])
			i++
		case bs[j].IsInsert():
			out = out.Insert(bs[j].Insert)
			j++
		case i >= len(as):
			out = appendOp(out, bs[j])
			j++
		case as[i].IsRetain() && bs[j].IsRetain():
			n := min(as[i].Retain, bs[j].Retain)
			out = out.Retain(n)
			as[i].Retain -= n
			bs[j].Retain -= n
			i, j = advance(as, i), advance(bs, j)
		case as[i].IsRetain() && bs[j].IsDelete():
			n := min(as[i].Retain, bs[j].Delete)
			out = out.Delete(n)
			as[i].Retain -= n
			bs[j].Delete -= n
			i, j = advance(as, i), advance(bs, j)
		case as[i].IsInsert() && bs[j].IsDelete():
			n := min(len(as[i].Insert), bs[j].Delete)
			as[i].Insert = as[i].Insert[n:]
			bs[j].Delete -= n
			if as[i].Insert == "" {
				i++
			}
			j = advance(bs, j)
		case as[i].IsInsert() && bs[j].IsRetain():
			n := min(len(as[i].Insert), bs[j].Retain)
			out = out.Insert(as[i].Insert[:n])
			as[i].Insert = as[i].Insert[n:]
			bs[j].Retain -= n
			if as[i].Insert == "" {
				i++
			}
			j = advance(bs, j)
		default:
			return Changeset{}, fmt.Errorf("compose: unhandled op pair")
		}
	}
	return out, nil
}

func expand(c Changeset, extraRetain int) []Op {
	ops := make([]Op, 0, len(c.Ops)+1)
	ops = append(ops, c.Ops...)
	if extraRetain > 0 {
		ops = append(ops, Op{Retain: extraRetain})
	}
	return ops
}

func appendOp(c Changeset, o Op) Changeset {
	switch {
	case o.IsRetain():
		return c.Retain(o.Retain)
	case o.IsInsert():
		return c.Insert(o.Insert)
	case o.IsDelete():
		return c.Delete(o.Delete)
	}
	return c
}

func advance(ops []Op, i int) int {
	if ops[i].Retain == 0 && ops[i].Insert == "" && ops[i].Delete == 0 {
		return i + 1
	}
	return i
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

package trie

import (
	"fmt"

	"github.com/japaniel/dictbuild/pkg/dicterr"
	"github.com/japaniel/dictbuild/pkg/lexicon"
)

// Group is the run of entries sharing one surface form. Group k belongs to the key of rank k.
type Group struct {
	First uint32
	Count uint32
}

// Compile builds the automaton over the distinct surfaces of entries, which must be in
// lexicon.Finalize order. It rejects entries that repeat a (surface, left, right) triple
// with a different cost, since a lookup could not tell which cost applies.
func Compile(entries []lexicon.Entry) (*Trie, []Group, error) {
	b := NewBuilder()
	var groups []Group
	for i := 0; i < len(entries); {
		j := i + 1
		for j < len(entries) && entries[j].Surface == entries[i].Surface {
			prev, cur := entries[j-1], entries[j]
			if lexicon.Compare(prev, cur) >= 0 {
				return nil, nil, dicterr.Build(cur.Pos, "entries are not sorted at %q", cur.Surface)
			}
			if prev.LeftID == cur.LeftID && prev.RightID == cur.RightID && prev.Cost != cur.Cost {
				return nil, nil, dicterr.Build(cur.Pos,
					"ambiguous entry %q (left %d, right %d): cost %d conflicts with cost %d at %s",
					cur.Surface, cur.LeftID, cur.RightID, cur.Cost, prev.Cost, prev.Pos)
			}
			j++
		}
		if err := b.Insert([]byte(entries[i].Surface)); err != nil {
			return nil, nil, dicterr.Build(entries[i].Pos, "insert %q: %v", entries[i].Surface, err)
		}
		groups = append(groups, Group{First: uint32(i), Count: uint32(j - i)})
		i = j
	}
	t := b.Finish()
	if t.Len() != len(groups) {
		return nil, nil, fmt.Errorf("trie: %d keys for %d groups", t.Len(), len(groups))
	}
	return t, groups, nil
}

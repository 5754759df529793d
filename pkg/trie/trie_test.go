package trie

import (
	"bytes"
	"errors"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/dictbuild/pkg/dicterr"
	"github.com/japaniel/dictbuild/pkg/lexicon"
)

func build(t *testing.T, keys ...string) *Trie {
	t.Helper()
	b := NewBuilder()
	for _, k := range keys {
		require.NoError(t, b.Insert([]byte(k)), "insert %q", k)
	}
	return b.Finish()
}

func TestCatCatsSharePrefix(t *testing.T) {
	tr := build(t, "cat", "cats")
	require.Equal(t, 2, tr.Len())
	// root, c, a, t, s: a single chain with two final states
	assert.Equal(t, 5, tr.NumNodes())
	assert.Equal(t, 4, tr.NumEdges())

	r, ok := tr.Exact([]byte("cat"))
	assert.True(t, ok)
	assert.Equal(t, 0, r)
	r, ok = tr.Exact([]byte("cats"))
	assert.True(t, ok)
	assert.Equal(t, 1, r)
	_, ok = tr.Exact([]byte("ca"))
	assert.False(t, ok)

	got := tr.CommonPrefix([]byte("catsup"))
	assert.Equal(t, []Match{{Rank: 0, Length: 3}, {Rank: 1, Length: 4}}, got)
}

func TestSuffixesAreShared(t *testing.T) {
	// tap and top share the "p" state and its final successor.
	tr := build(t, "tap", "taps", "top", "tops")
	plain := 1 + len("tap") + 1 + len("op") + 1 // nodes of an unminimized trie
	assert.Less(t, tr.NumNodes(), plain)
	for i, k := range []string{"tap", "taps", "top", "tops"} {
		r, ok := tr.Exact([]byte(k))
		require.True(t, ok, k)
		assert.Equal(t, i, r, k)
	}
}

func TestInsertRejectsUnsortedAndEmpty(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Insert([]byte("b")))
	assert.ErrorIs(t, b.Insert([]byte("a")), ErrUnsorted)
	assert.ErrorIs(t, b.Insert([]byte("b")), ErrUnsorted)
	assert.ErrorIs(t, b.Insert(nil), ErrEmptyKey)
	b.Finish()
	assert.ErrorIs(t, b.Insert([]byte("c")), ErrFinished)
}

func TestEmptyTrie(t *testing.T) {
	tr := NewBuilder().Finish()
	assert.Equal(t, 0, tr.Len())
	_, ok := tr.Exact([]byte("x"))
	assert.False(t, ok)
	assert.Empty(t, tr.CommonPrefix([]byte("x")))
	data, err := tr.MarshalBinary()
	require.NoError(t, err)
	var back Trie
	require.NoError(t, back.UnmarshalBinary(data))
	assert.Equal(t, 0, back.Len())
}

func randomKeys(r *rand.Rand, n int) []string {
	alphabet := []string{"a", "b", "c", "の", "猫", "ね", "こ"}
	set := map[string]bool{}
	for len(set) < n {
		var sb strings.Builder
		for l := 1 + r.Intn(6); l > 0; l-- {
			sb.WriteString(alphabet[r.Intn(len(alphabet))])
		}
		set[sb.String()] = true
	}
	keys := make([]string, 0, n)
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestMatchesLinearScan(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	keys := randomKeys(r, 300)
	tr := build(t, keys...)
	require.Equal(t, len(keys), tr.Len())

	var walked []string
	tr.Walk(func(key []byte, rank int) bool {
		require.Equal(t, len(walked), rank)
		walked = append(walked, string(key))
		return true
	})
	assert.Equal(t, keys, walked)

	for q := 0; q < 200; q++ {
		input := randomKeys(r, 1)[0] + randomKeys(r, 1)[0]
		var want []Match
		for rank, k := range keys {
			if strings.HasPrefix(input, k) {
				want = append(want, Match{Rank: rank, Length: len(k)})
			}
		}
		sort.Slice(want, func(i, j int) bool { return want[i].Length < want[j].Length })
		got := tr.CommonPrefix([]byte(input))
		if len(want) == 0 {
			assert.Empty(t, got, input)
		} else {
			assert.Equal(t, want, got, input)
			longest, ok := tr.LongestPrefix([]byte(input))
			assert.True(t, ok)
			assert.Equal(t, want[len(want)-1], longest)
		}
		rank, ok := tr.Exact([]byte(input))
		idx := sort.SearchStrings(keys, input)
		if idx < len(keys) && keys[idx] == input {
			assert.True(t, ok)
			assert.Equal(t, idx, rank)
		} else {
			assert.False(t, ok)
		}
	}
}

func TestBinaryRoundTripAndDeterminism(t *testing.T) {
	keys := randomKeys(rand.New(rand.NewSource(1)), 500)
	a, err := build(t, keys...).MarshalBinary()
	require.NoError(t, err)
	b, err := build(t, keys...).MarshalBinary()
	require.NoError(t, err)
	require.True(t, bytes.Equal(a, b), "two builds of the same keys differ")

	var back Trie
	require.NoError(t, back.UnmarshalBinary(a))
	for i, k := range keys {
		r, ok := back.Exact([]byte(k))
		require.True(t, ok, k)
		require.Equal(t, i, r, k)
	}
}

func TestUnmarshalRejectsCorruption(t *testing.T) {
	data, err := build(t, "cat", "cats", "dog").MarshalBinary()
	require.NoError(t, err)

	var tr Trie
	assert.Error(t, tr.UnmarshalBinary(data[:len(data)-1]))
	assert.Error(t, tr.UnmarshalBinary(nil))

	bad := append([]byte(nil), data...)
	bad[len(bad)-4] = 0xff // last edge target points past the root
	assert.Error(t, tr.UnmarshalBinary(bad))
}

func entry(surface string, left, right int, cost int16, line int) lexicon.Entry {
	return lexicon.Entry{Surface: surface, LeftID: left, RightID: right, Cost: cost, Features: []string{"NOUN"}, Pos: dicterr.Pos{File: "x.csv", Line: line}}
}

func TestCompileGroupsEntries(t *testing.T) {
	entries := lexicon.Finalize([]lexicon.Entry{
		entry("cats", 1, 2, 120, 2),
		entry("cat", 1, 2, 100, 1),
		entry("cat", 5, 5, 90, 3),
	})
	tr, groups, err := Compile(entries)
	require.NoError(t, err)
	assert.Equal(t, []Group{{First: 0, Count: 2}, {First: 2, Count: 1}}, groups)
	r, ok := tr.Exact([]byte("cats"))
	require.True(t, ok)
	assert.Equal(t, "cats", entries[groups[r].First].Surface)
}

func TestCompileRejectsConflictingCosts(t *testing.T) {
	entries := lexicon.Finalize([]lexicon.Entry{
		entry("cat", 1, 2, 100, 1),
		entry("cat", 1, 2, 101, 7),
	})
	_, _, err := Compile(entries)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dicterr.ErrBuild))
	assert.Contains(t, err.Error(), "x.csv:1")
	assert.Contains(t, err.Error(), "x.csv:7")
}

func TestCompileRejectsUnsortedInput(t *testing.T) {
	_, _, err := Compile([]lexicon.Entry{entry("b", 1, 1, 1, 1), entry("a", 1, 1, 1, 2)})
	assert.ErrorIs(t, err, dicterr.ErrBuild)
}

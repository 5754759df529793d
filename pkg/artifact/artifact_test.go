package artifact

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/dictbuild/pkg/chardef"
	"github.com/japaniel/dictbuild/pkg/dicterr"
	"github.com/japaniel/dictbuild/pkg/lexicon"
	"github.com/japaniel/dictbuild/pkg/matrix"
	"github.com/japaniel/dictbuild/pkg/trie"
)

func compile(t *testing.T, entries []lexicon.Entry, triples ...matrix.Triple) *Artifact {
	t.Helper()
	entries = lexicon.Finalize(entries)
	tr, groups, err := trie.Compile(entries)
	require.NoError(t, err)
	mb := matrix.NewBuilder(0)
	for _, e := range entries {
		require.NoError(t, mb.Observe(e.Pos, e.LeftID, e.RightID))
	}
	for _, tp := range triples {
		require.NoError(t, mb.Add(tp))
	}
	return &Artifact{Variant: "csv", Trie: tr, Groups: groups, Entries: entries, Matrix: mb.Build()}
}

func sample(t *testing.T) *Artifact {
	return compile(t, []lexicon.Entry{
		{Surface: "cats", LeftID: 1, RightID: 2, Cost: 120, Features: []string{"名詞", "一般"}},
		{Surface: "cat", LeftID: 1, RightID: 2, Cost: 100, Features: []string{"名詞", "一般"}},
		{Surface: "cat", LeftID: 3, RightID: 0, Cost: -5, Features: []string{"動詞"}},
		{Surface: "猫", LeftID: 2, RightID: 2, Cost: 7, Features: []string{"名詞", "ネコ"}},
	}, matrix.Triple{Left: 0, Right: 1, Cost: -200})
}

// Pos is diagnostic only and is not serialized.
var ignorePos = cmpopts.IgnoreFields(lexicon.Entry{}, "Pos")

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		a := sample(t)
		data, h, err := Encode(a, Options{Compress: compress})
		require.NoError(t, err)
		assert.Equal(t, compress, h.Compressed())

		back, h2, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, h, h2)
		assert.Equal(t, "csv", back.Variant)
		if diff := cmp.Diff(a.Entries, back.Entries, ignorePos); diff != "" {
			t.Fatalf("entries mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, a.Groups, back.Groups)
		for l := 0; l < a.Matrix.Rows; l++ {
			for r := 0; r < a.Matrix.Cols; r++ {
				assert.Equal(t, a.Matrix.Cost(l, r), back.Matrix.Cost(l, r))
			}
		}
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	first, _, err := Encode(sample(t), Options{Compress: true})
	require.NoError(t, err)
	second, _, err := Encode(sample(t), Options{Compress: true})
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second))
}

func TestDictionaryLookups(t *testing.T) {
	a := sample(t)
	data, h, err := Encode(a, Options{})
	require.NoError(t, err)
	back, _, err := Decode(data)
	require.NoError(t, err)
	d, err := NewDictionary(back, h, 8)
	require.NoError(t, err)

	es := d.Exact("cat")
	require.Len(t, es, 2)
	assert.Equal(t, 1, es[0].LeftID)
	assert.Equal(t, 3, es[1].LeftID)
	// cached
	assert.Len(t, d.Exact("cat"), 2)
	assert.Empty(t, d.Exact("ca"))

	hits := d.CommonPrefix("catsup")
	require.Len(t, hits, 2)
	assert.Equal(t, "cat", hits[0].Surface)
	assert.Equal(t, "cats", hits[1].Surface)
	assert.Equal(t, int16(120), hits[1].Entries[0].Cost)

	hit, ok := d.LongestPrefix("猫です")
	require.True(t, ok)
	assert.Equal(t, "猫", hit.Surface)
	assert.Equal(t, len("猫"), hit.Length)
	_, ok = d.LongestPrefix("dog")
	assert.False(t, ok)

	assert.Equal(t, int16(-200), d.Cost(0, 1))
	assert.Equal(t, matrix.Disconnected, d.Cost(1, 2))

	st := d.Stats()
	assert.Equal(t, 3, st.Keys)
	assert.Equal(t, 4, st.Entries)
	assert.Equal(t, 4, st.Rows)
	assert.Equal(t, 3, st.Cols)
	assert.Equal(t, "1.1", st.Version)
	assert.Zero(t, st.Categories)
	cat, unk := d.Unknown('猫')
	assert.Empty(t, cat)
	assert.Nil(t, unk)
}

func TestWriteAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.bin")
	_, err := Write(path, sample(t), Options{Compress: true})
	require.NoError(t, err)

	d, err := Open(path)
	require.NoError(t, err)
	assert.Len(t, d.Exact("cats"), 1)
	assert.True(t, d.Stats().Compressed)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".*tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestWriteFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	// The destination is an existing directory, so the final rename fails.
	path := filepath.Join(dir, "taken")
	require.NoError(t, os.Mkdir(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "keep"), nil, 0o644))

	_, err := Write(path, sample(t), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, dicterr.ErrIO)

	names, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "taken", names[0].Name())

	_, err = Write(filepath.Join(dir, "missing", "dict.bin"), sample(t), Options{})
	assert.ErrorIs(t, err, dicterr.ErrIO)
}

func TestVersionNegotiation(t *testing.T) {
	data, _, err := Encode(sample(t), Options{})
	require.NoError(t, err)

	newerMinor := append([]byte(nil), data...)
	binary.LittleEndian.PutUint16(newerMinor[6:], MinorVersion+3)
	_, h, err := Decode(newerMinor)
	require.NoError(t, err)
	assert.Equal(t, MinorVersion+3, h.Minor)

	for _, major := range []uint16{MajorVersion + 1, MajorVersion - 1} {
		bad := append([]byte(nil), data...)
		binary.LittleEndian.PutUint16(bad[4:], major)
		_, _, err := Decode(bad)
		assert.ErrorIs(t, err, dicterr.ErrVersion, "major %d", major)
	}

	bad := append([]byte(nil), data...)
	copy(bad, "NOPE")
	_, _, err = Decode(bad)
	assert.ErrorIs(t, err, dicterr.ErrVersion)

	flags := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(flags[12:], 1<<7)
	_, _, err = Decode(flags)
	assert.ErrorIs(t, err, dicterr.ErrVersion)
}

func TestDecodeRejectsCorruption(t *testing.T) {
	data, _, err := Encode(sample(t), Options{})
	require.NoError(t, err)

	flipped := append([]byte(nil), data...)
	flipped[len(flipped)-3] ^= 0x40
	_, _, err = Decode(flipped)
	require.Error(t, err)
	assert.ErrorIs(t, err, dicterr.ErrIO)
	assert.True(t, strings.Contains(err.Error(), "checksum"))

	_, _, err = Decode(data[:len(data)-10])
	assert.ErrorIs(t, err, dicterr.ErrIO)

	_, _, err = Decode(data[:5])
	assert.ErrorIs(t, err, dicterr.ErrIO)

	_, _, err = Read(bytes.NewReader(data))
	assert.NoError(t, err)
}

func TestEncodeRejectsEntriesOutsideMatrix(t *testing.T) {
	a := sample(t)
	a.Matrix = matrix.NewBuilder(0).Build()
	_, _, err := Encode(a, Options{})
	assert.ErrorIs(t, err, dicterr.ErrBuild)
}

func unknownTable(t *testing.T, unk string) *chardef.Table {
	t.Helper()
	def, err := chardef.ParseCharDef(strings.NewReader("DEFAULT 0 1 0\nKANJI 0 0 2\n0x4E00..0x9FFF KANJI\n"), "char.def")
	require.NoError(t, err)
	table, err := chardef.ParseUnk(lexicon.NewReader(strings.NewReader(unk), "unk.def"), def)
	require.NoError(t, err)
	return table
}

func TestUnknownSectionRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		a := sample(t)
		a.Unknown = unknownTable(t, "DEFAULT,0,0,4769,記号,一般\nKANJI,2,2,11426,名詞,一般\nKANJI,3,1,17290,名詞,サ変接続\n")
		data, h, err := Encode(a, Options{Compress: compress})
		require.NoError(t, err)
		assert.NotZero(t, h.UnknownLen)

		back, h2, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, h, h2)
		require.NotNil(t, back.Unknown)
		opts := cmp.Options{cmpopts.IgnoreFields(chardef.UnkEntry{}, "Pos"), cmpopts.IgnoreUnexported(chardef.Table{}, chardef.CharDef{})}
		if diff := cmp.Diff(a.Unknown, back.Unknown, opts); diff != "" {
			t.Fatalf("unknown table mismatch (-want +got):\n%s", diff)
		}

		d, err := NewDictionary(back, h2, 0)
		require.NoError(t, err)
		cat, entries := d.Unknown('猫')
		assert.Equal(t, "KANJI", cat)
		require.Len(t, entries, 2)
		assert.Equal(t, int16(17290), entries[1].Cost)
		cat, entries = d.Unknown('x')
		assert.Equal(t, "DEFAULT", cat)
		assert.Len(t, entries, 1)
		assert.Equal(t, 2, d.Stats().Categories)
		assert.Equal(t, 3, d.Stats().UnknownEntries)
	}
}

func TestEncodeRejectsUnknownWordsOutsideMatrix(t *testing.T) {
	a := sample(t)
	a.Unknown = unknownTable(t, "DEFAULT,0,0,1,記号\nKANJI,9,0,1,名詞\n")
	_, _, err := Encode(a, Options{})
	assert.ErrorIs(t, err, dicterr.ErrBuild)
}

func TestDecodeReadsMinorZeroHeader(t *testing.T) {
	data, h, err := Encode(sample(t), Options{})
	require.NoError(t, err)

	// Minor 0 headers are 72 bytes and end at the checksum.
	legacy := append([]byte(nil), data[:minorZeroHdrSize]...)
	binary.LittleEndian.PutUint16(legacy[6:], 0)
	binary.LittleEndian.PutUint32(legacy[8:], minorZeroHdrSize)
	legacy = append(legacy, data[h.HeaderSize:]...)

	back, lh, err := Decode(legacy)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), lh.Minor)
	assert.Zero(t, lh.UnknownLen)
	assert.Nil(t, back.Unknown)
	assert.Equal(t, 3, back.Trie.Len())

	// A minor 1 header may not be shorter than 80 bytes.
	binary.LittleEndian.PutUint16(legacy[6:], 1)
	_, _, err = Decode(legacy)
	assert.ErrorIs(t, err, dicterr.ErrIO)
}

func TestDecodeRejectsHeaderMatrixMismatch(t *testing.T) {
	data, h, err := Encode(sample(t), Options{})
	require.NoError(t, err)
	for _, off := range []int{24, 28} {
		bad := append([]byte(nil), data...)
		binary.LittleEndian.PutUint32(bad[off:], h.Rows+h.Cols+1)
		_, _, err := Decode(bad)
		require.ErrorIs(t, err, dicterr.ErrIO, "offset %d", off)
		assert.Contains(t, err.Error(), "matrix")
	}
}

package intern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedPrefixIDs(t *testing.T) {
	b := NewBuilder()
	in := b.Build()

	assert.Equal(t, "<module>", in.String(ModuleStringID))
	assert.Equal(t, StringID(0), ModuleStringID)

	assert.Equal(t, StringID(70), StringID(MaxAttrID))
	assert.Equal(t, StringID(71), EmptyStringID)
	assert.Equal(t, "", in.String(EmptyStringID))

	cases := map[StringID]string{
		AttrAppend: "append",
		AttrPop:    "pop",
		AttrKeys:   "keys",
		AttrItems:  "items",
		AttrAdd:    "add",
		AttrUnion:  "union",
		AttrUpper:  "upper",
		AttrJoin:   "join",
		AttrDecode: "decode",
		AttrHex:    "hex",
	}
	for id, want := range cases {
		assert.Equal(t, want, in.String(id), "id %d", id)
	}
}

func TestAsciiStringIDs(t *testing.T) {
	b := NewBuilder()
	in := b.Build()

	assert.Equal(t, StringID(72), AsciiStringID(0))
	assert.Equal(t, StringID(72+127), AsciiStringID(127))
	assert.Equal(t, string([]byte{0}), in.String(AsciiStringID(0)))
	assert.Equal(t, "A", in.String(AsciiStringID('A')))
	assert.Equal(t, "z", in.String(AsciiStringID('z')))
}

func TestRuntimeStringInterningDedupes(t *testing.T) {
	b := NewBuilder()
	id1 := b.String("hello world")
	id2 := b.String("hello world")
	id3 := b.String("something else")
	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, id3)
	assert.GreaterOrEqual(t, uint32(id1), uint32(firstFreeStringID))

	in := b.Build()
	assert.Equal(t, "hello world", in.String(id1))
	assert.Equal(t, "something else", in.String(id3))
}

func TestBytesAreNotDeduped(t *testing.T) {
	b := NewBuilder()
	id1 := b.Bytes([]byte("abc"))
	id2 := b.Bytes([]byte("abc"))
	assert.NotEqual(t, id1, id2)

	in := b.Build()
	assert.Equal(t, []byte("abc"), in.Bytes(id1))
	assert.Equal(t, []byte("abc"), in.Bytes(id2))
}

func TestExternalFunctionNamesDedupe(t *testing.T) {
	b := NewBuilder()
	id1 := b.ExternalFunction("env_get")
	id2 := b.ExternalFunction("env_get")
	id3 := b.ExternalFunction("async_gather")
	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, id3)

	in := b.Build()
	assert.Equal(t, "env_get", in.ExternalFunctionName(id1))
	assert.Equal(t, "async_gather", in.ExternalFunctionName(id3))
}

type fakeFunctionRecord struct{ name string }

func (f fakeFunctionRecord) FunctionName() string { return f.name }

func TestFunctionTable(t *testing.T) {
	b := NewBuilder()
	id := b.Function(fakeFunctionRecord{name: "do_thing"})
	in := b.Build()
	assert.Equal(t, "do_thing", in.Function(id).FunctionName())
}

package layout

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/swiper/heap/header"
	"github.com/joshuapare/swiper/internal/mem"
)

// testPerm is a bump allocator over the first pages of the test arena.
type testPerm struct {
	top, end mem.Address
}

func (p *testPerm) Alloc(size uint64) (mem.Address, error) {
	size = mem.AlignWord(size)
	if p.top.Add(size) > p.end {
		return mem.Null, errors.New("perm exhausted")
	}
	addr := p.top
	p.top = p.top.Add(size)
	return addr, nil
}

type fixture struct {
	arena *mem.Arena
	reg   *Registry
	model *Model
	next  mem.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	a, err := mem.Reserve(8 * mem.PageSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	reg, err := NewRegistry(a, &testPerm{top: mem.PageSize, end: 2 * mem.PageSize})
	require.NoError(t, err)
	return &fixture{arena: a, reg: reg, model: NewModel(a, reg), next: 3 * mem.PageSize}
}

func (f *fixture) take(size uint64) mem.Address {
	addr := f.next
	f.next = f.next.Add(size)
	return addr
}

func TestArraySize(t *testing.T) {
	f := newFixture(t)
	b := f.reg.Builtins()

	tests := []struct {
		name string
		c    *Class
		n    uint64
		want uint64
	}{
		{"empty str", b.Str, 0, 24},
		{"str 1", b.Str, 1, 32},
		{"str 8", b.Str, 8, 32},
		{"str 9", b.Str, 9, 40},
		{"int 3", b.IntArray, 3, 40},
		{"char 4", b.CharArray, 4, 32},
		{"obj 2", b.ObjArray, 2, 40},
		{"free 0", b.FreeArray, 0, 24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ArraySize(tt.c, tt.n)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := ArraySize(b.LongArray, ^uint64(0)/4)
	assert.False(t, ok, "overflowing length must be rejected")
}

func TestRegistry_Builtins(t *testing.T) {
	f := newFixture(t)
	b := f.reg.Builtins()

	assert.Equal(t, KindStr, b.Str.Kind)
	assert.Equal(t, KindFreeArray, b.FreeArray.Kind)
	assert.Equal(t, uint64(2), b.CharArray.ElemSize)
	assert.Len(t, f.reg.Classes(), 10)

	for _, c := range f.reg.Classes() {
		got, err := f.reg.ClassAt(c.Addr)
		require.NoError(t, err)
		assert.Same(t, c, got)
	}
}

func TestRegistry_DefineFixed(t *testing.T) {
	f := newFixture(t)

	c, err := f.reg.DefineFixed("Pair", 32, 24, 16)
	require.NoError(t, err)
	assert.Equal(t, []uint64{16, 24}, c.RefFields)
	assert.Equal(t, uint64(32), c.Size)
	assert.True(t, c.HasRefs())

	small, err := f.reg.DefineFixed("Empty", 16)
	require.NoError(t, err)
	assert.Equal(t, uint64(MinObjectSize), small.Size)

	got, ok := f.reg.Lookup("Pair")
	require.True(t, ok)
	assert.Same(t, c, got)
}

func TestRegistry_DefineFixedRejects(t *testing.T) {
	f := newFixture(t)

	_, err := f.reg.DefineFixed("Tiny", 8)
	require.ErrorIs(t, err, ErrBadLayout)

	_, err = f.reg.DefineFixed("HeaderRef", 32, 8)
	require.ErrorIs(t, err, ErrBadLayout)

	_, err = f.reg.DefineFixed("Past", 32, 32)
	require.ErrorIs(t, err, ErrBadLayout)

	_, err = f.reg.DefineFixed("Odd", 32, 20)
	require.ErrorIs(t, err, ErrBadLayout)

	_, err = f.reg.DefineFixed("Dup", 32, 16, 16)
	require.ErrorIs(t, err, ErrBadLayout)

	_, err = f.reg.DefineArray("Wide", 3)
	require.ErrorIs(t, err, ErrBadLayout)

	_, err = f.reg.DefineFixed("Str", 32)
	require.ErrorIs(t, err, ErrDuplicateClass)
}

func TestRegistry_ClassAtRejects(t *testing.T) {
	f := newFixture(t)

	_, err := f.reg.ClassAt(3 * mem.PageSize)
	require.ErrorIs(t, err, ErrNoClass)

	_, err = f.reg.ClassAt(f.reg.Builtins().Str.Addr + 4)
	require.ErrorIs(t, err, ErrNoClass)
}

func TestModel_SizeOf(t *testing.T) {
	f := newFixture(t)
	b := f.reg.Builtins()
	pair, err := f.reg.DefineFixed("Pair", 32, 16, 24)
	require.NoError(t, err)

	obj := InitObject(f.arena, f.take(32), pair)
	arr := InitArray(f.arena, f.take(64), b.IntArray, 10)
	str := InitStr(f.arena, f.take(48), b.Str, []byte("hello, world"))

	assert.Equal(t, uint64(32), f.model.SizeOf(obj.Address()))
	assert.Equal(t, uint64(64), f.model.SizeOf(arr.Address()))
	assert.Equal(t, uint64(40), f.model.SizeOf(str.Address()))
}

func TestModel_SizeOfForwardFailed(t *testing.T) {
	f := newFixture(t)
	arr := InitArray(f.arena, f.take(40), f.reg.Builtins().ObjArray, 2)

	_, ok := arr.Header().MarkForwardFailed(f.reg.Builtins().ObjArray.Addr)
	require.True(t, ok)
	assert.Equal(t, uint64(40), f.model.SizeOf(arr.Address()), "sentinel still names the class")
}

func TestModel_SizeOfBadClass(t *testing.T) {
	f := newFixture(t)
	addr := f.take(32)
	header.Init(f.arena, addr, 3*mem.PageSize+0x800)

	assert.Panics(t, func() { f.model.SizeOf(addr) })
}

func TestModel_ForEachReferenceField(t *testing.T) {
	f := newFixture(t)
	b := f.reg.Builtins()
	pair, err := f.reg.DefineFixed("Pair", 40, 32, 16)
	require.NoError(t, err)

	obj := InitObject(f.arena, f.take(40), pair)
	var slots []mem.Address
	f.model.ForEachReferenceField(obj.Address(), func(s mem.Address) { slots = append(slots, s) })
	assert.Equal(t, []mem.Address{obj.Address() + 16, obj.Address() + 32}, slots)

	arr := InitArray(f.arena, f.take(56), b.ObjArray, 4)
	slots = nil
	f.model.ForEachReferenceField(arr.Address(), func(s mem.Address) { slots = append(slots, s) })
	require.Len(t, slots, 4)
	assert.Equal(t, arr.Address()+DataOffset, slots[0])

	for _, c := range []*Class{b.Str, b.LongArray, b.FreeArray} {
		a := InitArray(f.arena, f.take(64), c, 4)
		f.model.ForEachReferenceField(a.Address(), func(mem.Address) {
			t.Fatalf("%s has no reference slots", c.Name)
		})
	}
}

func TestModel_ForEachReferenceFieldWithin(t *testing.T) {
	f := newFixture(t)
	b := f.reg.Builtins()

	arr := InitArray(f.arena, f.take(24+8*8), b.ObjArray, 8)
	limit := arr.Address() + DataOffset + 3*mem.PtrSize

	var n int
	f.model.ForEachReferenceFieldWithin(arr.Address(), limit, func(s mem.Address) {
		assert.Less(t, s, limit)
		n++
	})
	assert.Equal(t, 3, n)

	pair, err := f.reg.DefineFixed("Pair", 32, 16, 24)
	require.NoError(t, err)
	obj := InitObject(f.arena, f.take(32), pair)
	n = 0
	f.model.ForEachReferenceFieldWithin(obj.Address(), obj.Address()+8, func(mem.Address) { n++ })
	assert.Equal(t, 2, n, "fixed instances are visited whole")
}

func TestArray_Elements(t *testing.T) {
	f := newFixture(t)
	b := f.reg.Builtins()

	chars := InitArray(f.arena, f.take(32), b.CharArray, 4)
	require.NoError(t, chars.SetUint(1, 0x1_2345))
	v, err := chars.Uint(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x2345), v, "value is truncated to the element width")

	doubles := InitArray(f.arena, f.take(40), b.DoubleArray, 2)
	require.NoError(t, doubles.SetFloat64(1, 2.5))
	d, err := doubles.Float64(1)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, d, 0)

	_, err = chars.Uint(4)
	require.ErrorIs(t, err, ErrIndex)
	_, err = doubles.Ref(9)
	require.ErrorIs(t, err, ErrIndex)
}

func TestStr_Text(t *testing.T) {
	f := newFixture(t)
	b := f.reg.Builtins()

	utf := InitStr(f.arena, f.take(32), b.Str, []byte("héllo"))
	assert.Equal(t, "héllo", utf.Text())

	latin := InitStr(f.arena, f.take(32), b.Str, []byte{'c', 'a', 'f', 0xe9})
	assert.Equal(t, "café", latin.Text())
	assert.Equal(t, uint64(4), latin.Len())

	empty := InitStr(f.arena, f.take(24), b.Str, nil)
	assert.Empty(t, empty.String())
	assert.Nil(t, empty.Bytes())
}

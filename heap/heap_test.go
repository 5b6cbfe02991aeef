package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/swiper/heap/collect"
	"github.com/joshuapare/swiper/heap/header"
	"github.com/joshuapare/swiper/heap/layout"
	"github.com/joshuapare/swiper/heap/root"
	"github.com/joshuapare/swiper/internal/mem"
)

func newTestHeap(t *testing.T, opts *Options) *Heap {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	if opts.Abort == nil {
		opts.Abort = func(err error) { t.Errorf("unexpected abort: %v", err) }
	}
	h, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func defineNode(t *testing.T, h *Heap) *layout.Class {
	t.Helper()
	node, err := h.Classes().DefineFixed("Node", 32, 16, 24)
	require.NoError(t, err)
	return node
}

func TestNew_Layout(t *testing.T) {
	h := newTestHeap(t, &Options{
		PermSize:  100,
		YoungSize: 3 * mem.PageSize,
		OldSize:   5 * mem.PageSize,
		LargeSize: 7 * mem.PageSize,
	})

	perm, young, old, large := h.Perm().Region(), h.Young().Region(), h.Old().Region(), h.Large().Region()
	assert.Equal(t, mem.Address(mem.PageSize), perm.Start)
	assert.Equal(t, uint64(mem.PageSize), perm.Size(), "sizes are rounded to pages")
	assert.Equal(t, perm.End, young.Start)
	assert.Equal(t, young.End, old.Start)
	assert.Equal(t, old.End, large.Start)
	assert.Equal(t, uint64(7*mem.PageSize), large.Size())
	assert.Equal(t, old, h.Cards().Region())
	assert.Equal(t, 5*mem.PageSize/512, h.Crossing().Len())
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, uint64(4<<20), o.YoungSize)
	assert.Equal(t, uint64(collect.DefaultLargeThreshold), o.LargeThreshold)
	assert.Positive(t, o.Workers)

	merged := (&Options{YoungSize: 8192}).withDefaults()
	assert.Equal(t, uint64(8192), merged.YoungSize)
	assert.Equal(t, o.OldSize, merged.OldSize)
	assert.NotNil(t, merged.Abort)
	assert.NotNil(t, merged.Logger)
}

func TestAlloc_Routing(t *testing.T) {
	h := newTestHeap(t, &Options{LargeThreshold: 1024})
	longs := h.Classes().Builtins().LongArray

	small, err := h.NewArray(longs, 124) // 1016 bytes
	require.NoError(t, err)
	assert.True(t, h.Young().Contains(small))

	big, err := h.NewArray(longs, 125) // 1024 bytes
	require.NoError(t, err)
	assert.True(t, h.Large().Contains(big))
	assert.Equal(t, uint64(125), layout.ArrayAt(h.Arena(), big, longs).Len())

	old, err := h.AllocOld(40)
	require.NoError(t, err)
	assert.True(t, h.Old().Contains(old))

	perm, err := h.AllocPerm(8)
	require.NoError(t, err)
	assert.True(t, h.Perm().Contains(perm))
}

func TestNewObject_WrongKind(t *testing.T) {
	h := newTestHeap(t, nil)
	b := h.Classes().Builtins()

	_, err := h.NewObject(b.Str)
	require.ErrorIs(t, err, ErrWrongKind)
	_, err = h.NewArray(b.Str, 3)
	require.ErrorIs(t, err, ErrWrongKind)
	_, err = h.NewArray(b.LongArray, ^uint64(0)/2)
	require.ErrorIs(t, err, layout.ErrTooLarge)
}

func TestStrings(t *testing.T) {
	h := newTestHeap(t, nil)

	s, err := h.NewString("hello")
	require.NoError(t, err)
	assert.True(t, h.Young().Contains(s))
	assert.Equal(t, "hello", layout.StrAt(h.Arena(), s).String())

	p1, err := h.NewPermString("name")
	require.NoError(t, err)
	p2, err := h.NewPermString("name")
	require.NoError(t, err)
	p3, err := h.NewPermString("other")
	require.NoError(t, err)

	assert.Equal(t, p1, p2, "permanent strings are interned")
	assert.NotEqual(t, p1, p3)
	assert.True(t, h.Perm().Contains(p1))
	assert.Equal(t, 2, h.Stats().Interned)
}

func TestWriteBarrier(t *testing.T) {
	h := newTestHeap(t, nil)
	node := defineNode(t, h)

	young, err := h.NewObject(node)
	require.NoError(t, err)
	oldAddr, err := h.AllocOld(node.Size)
	require.NoError(t, err)
	layout.InitObject(h.Arena(), oldAddr, node)

	require.NoError(t, h.StoreRef(young, 16, oldAddr))
	assert.Zero(t, h.Cards().DirtyCount(), "young stores need no card")

	require.NoError(t, h.StoreRef(oldAddr, 24, young))
	assert.True(t, h.Cards().IsDirty(h.Cards().IndexOf(oldAddr+24)))
	assert.Equal(t, young, h.LoadRef(oldAddr, 24))

	// Null stores dirty the card as well.
	h.Cards().ClearAll()
	require.NoError(t, h.StoreRef(oldAddr, 16, mem.Null))
	assert.Equal(t, 1, h.Cards().DirtyCount())
}

func TestStoreElem(t *testing.T) {
	h := newTestHeap(t, nil)
	b := h.Classes().Builtins()

	arrAddr, err := h.AllocOld(24 + 8*100)
	require.NoError(t, err)
	layout.InitArray(h.Arena(), arrAddr, b.ObjArray, 100)
	s, err := h.NewString("x")
	require.NoError(t, err)

	require.NoError(t, h.StoreElem(arrAddr, 99, s))
	got, err := h.LoadElem(arrAddr, 99)
	require.NoError(t, err)
	assert.Equal(t, s, got)
	slot := arrAddr + layout.DataOffset + 99*8
	assert.True(t, h.Cards().IsDirty(h.Cards().IndexOf(slot)))

	require.ErrorIs(t, h.StoreElem(arrAddr, 100, s), layout.ErrIndex)
	_, err = h.LoadElem(s, 0)
	require.ErrorIs(t, err, ErrWrongKind)
}

func TestPermStores(t *testing.T) {
	h := newTestHeap(t, nil)
	b := h.Classes().Builtins()

	permArr, err := h.AllocPerm(24 + 8*2)
	require.NoError(t, err)
	layout.InitArray(h.Arena(), permArr, b.ObjArray, 2)
	name, err := h.NewPermString("n")
	require.NoError(t, err)
	young, err := h.NewString("y")
	require.NoError(t, err)

	require.NoError(t, h.StoreElem(permArr, 0, name))
	require.ErrorIs(t, h.StoreElem(permArr, 1, young), ErrPermReference)
	require.NoError(t, h.StoreElem(permArr, 1, mem.Null))
}

func TestCollect_HandlesGlobalsAndProvider(t *testing.T) {
	var external mem.Address
	h := newTestHeap(t, &Options{
		Verify: true,
		Roots:  func() []root.Slot { return []root.Slot{root.At(&external)} },
	})
	node := defineNode(t, h)

	a, err := h.NewObject(node)
	require.NoError(t, err)
	ha := h.Handles().New(a)
	g, err := h.NewObject(node)
	require.NoError(t, err)
	global, err := h.NewGlobal(g)
	require.NoError(t, err)
	external, err = h.NewObject(node)
	require.NoError(t, err)
	_, err = h.NewObject(node) // garbage
	require.NoError(t, err)

	var seen []collect.Result
	h.OnCollect(func(r collect.Result) { seen = append(seen, r) })

	res, err := h.Collect(collect.ReasonExplicit)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res.Marked)
	require.Len(t, seen, 1)
	assert.Equal(t, collect.ReasonExplicit, seen[0].Reason)

	for _, addr := range []mem.Address{ha.Get(), global.Get(), external} {
		assert.True(t, h.Old().Contains(addr))
		assert.Equal(t, node.Addr, header.At(h.Arena(), addr).ClassPointer())
	}
	assert.True(t, h.Perm().Contains(h.globals[0]))

	st := h.Stats()
	assert.Equal(t, uint64(1), st.Cycles)
	assert.Equal(t, uint64(3*32), st.OldUsed)
	assert.Zero(t, st.YoungUsed)
}

func TestAlloc_CollectsWhenYoungIsFull(t *testing.T) {
	h := newTestHeap(t, &Options{YoungSize: mem.PageSize, OldSize: 16 * mem.PageSize, Verify: true})
	node := defineNode(t, h)

	scope := h.Handles()
	scope.Push()
	defer scope.Pop()
	head := scope.New(mem.Null)

	cycles := 0
	h.OnCollect(func(collect.Result) { cycles++ })

	for i := range 1000 {
		n, err := h.NewObject(node)
		require.NoError(t, err)
		if i%10 != 0 {
			continue
		}
		require.NoError(t, h.StoreRef(n, 16, head.Get()))
		if prev := head.Get(); !prev.IsNull() {
			require.NoError(t, h.StoreRef(prev, 24, n))
		}
		head.Set(n)
	}
	assert.Positive(t, cycles)

	count := 0
	for addr := head.Get(); !addr.IsNull(); addr = h.LoadRef(addr, 16) {
		count++
	}
	assert.Equal(t, 100, count)
	assert.Equal(t, uint64(cycles), h.Stats().Cycles)
}

func TestAlloc_OutOfMemoryAborts(t *testing.T) {
	var aborted error
	h := newTestHeap(t, &Options{
		YoungSize: mem.PageSize,
		OldSize:   mem.PageSize,
		LargeSize: mem.PageSize,
		Abort:     func(err error) { aborted = err },
	})
	node := defineNode(t, h)
	head := h.Handles().New(mem.Null)

	var err error
	for range 1000 {
		var n mem.Address
		n, err = h.NewObject(node)
		if err != nil {
			break
		}
		require.NoError(t, h.StoreRef(n, 16, head.Get()))
		head.Set(n)
	}
	require.ErrorIs(t, err, collect.ErrOutOfMemory)
	require.ErrorIs(t, aborted, collect.ErrOutOfMemory)
}

func TestAlloc_LargeFailureCollects(t *testing.T) {
	h := newTestHeap(t, &Options{LargeSize: 2 * mem.PageSize, LargeThreshold: 1024})
	longs := h.Classes().Builtins().LongArray

	for range 5 {
		_, err := h.NewArray(longs, 1000) // two pages, garbage each time
		require.NoError(t, err)
	}
	st := h.Stats()
	assert.Equal(t, uint64(4), st.Cycles)
	assert.Equal(t, collect.ReasonLargeFailure, st.Last.Reason)
	assert.Equal(t, 1, st.LargeObjects)
}

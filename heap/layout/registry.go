package layout

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/joshuapare/swiper/heap/header"
	"github.com/joshuapare/swiper/internal/mem"
)

// PermAllocator hands out never-collected memory for class descriptors.
type PermAllocator interface {
	Alloc(size uint64) (mem.Address, error)
}

const (
	// descriptorSize is the size of a class descriptor record.
	//
	//	+0   magic<<32 | id
	//	+8   kind | elemSize<<8
	//	+16  instance size
	//	+24  number of reference fields
	descriptorSize = 4 * mem.PtrSize

	descriptorMagic = 0x636c7364 // "clsd"
)

// Builtins are the classes every heap defines at creation.
type Builtins struct {
	Str         *Class
	BoolArray   *Class
	ByteArray   *Class
	CharArray   *Class
	IntArray    *Class
	LongArray   *Class
	FloatArray  *Class
	DoubleArray *Class
	ObjArray    *Class
	FreeArray   *Class
}

// Registry owns the class descriptors of one heap. Definitions are
// serialised; lookups by descriptor address are lock-free.
type Registry struct {
	arena *mem.Arena
	perm  PermAllocator

	mu      sync.Mutex
	byName  map[string]*Class
	classes atomic.Pointer[[]*Class] // index is Class.ID; 0 is unused

	builtins Builtins
}

// NewRegistry creates a registry that places descriptors in perm and
// defines the built-in classes.
func NewRegistry(arena *mem.Arena, perm PermAllocator) (*Registry, error) {
	r := &Registry{
		arena:  arena,
		perm:   perm,
		byName: make(map[string]*Class),
	}
	empty := []*Class{nil}
	r.classes.Store(&empty)

	b := &r.builtins
	defs := []struct {
		dst  **Class
		name string
		kind Kind
		elem uint64
	}{
		{&b.Str, "Str", KindStr, 1},
		{&b.BoolArray, "BoolArray", KindArray, 1},
		{&b.ByteArray, "ByteArray", KindArray, 1},
		{&b.CharArray, "CharArray", KindArray, 2},
		{&b.IntArray, "IntArray", KindArray, 4},
		{&b.LongArray, "LongArray", KindArray, 8},
		{&b.FloatArray, "FloatArray", KindArray, 4},
		{&b.DoubleArray, "DoubleArray", KindArray, 8},
		{&b.ObjArray, "ObjArray", KindObjArray, mem.PtrSize},
		{&b.FreeArray, "FreeArray", KindFreeArray, mem.PtrSize},
	}
	for _, d := range defs {
		c, err := r.define(&Class{Name: d.name, Kind: d.kind, ElemSize: d.elem})
		if err != nil {
			return nil, fmt.Errorf("layout: define builtin %s: %w", d.name, err)
		}
		*d.dst = c
	}
	return r, nil
}

// Builtins returns the built-in classes.
func (r *Registry) Builtins() *Builtins { return &r.builtins }

// DefineFixed defines a fixed-size class. size includes the header;
// refFields are byte offsets of reference-typed fields.
func (r *Registry) DefineFixed(name string, size uint64, refFields ...uint64) (*Class, error) {
	if size < header.Size {
		return nil, fmt.Errorf("%w: %s: size %d smaller than header", ErrBadLayout, name, size)
	}
	size = AlignObject(size)
	refs := slices.Clone(refFields)
	slices.Sort(refs)
	for i, off := range refs {
		if off < header.Size || off%mem.PtrSize != 0 || off+mem.PtrSize > size {
			return nil, fmt.Errorf("%w: %s: reference field at offset %d", ErrBadLayout, name, off)
		}
		if i > 0 && refs[i-1] == off {
			return nil, fmt.Errorf("%w: %s: duplicate reference field %d", ErrBadLayout, name, off)
		}
	}
	return r.define(&Class{Name: name, Kind: KindFixed, Size: size, RefFields: refs})
}

// DefineArray defines a primitive array class with the given element width.
func (r *Registry) DefineArray(name string, elemSize uint64) (*Class, error) {
	switch elemSize {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("%w: %s: element size %d", ErrBadLayout, name, elemSize)
	}
	return r.define(&Class{Name: name, Kind: KindArray, ElemSize: elemSize})
}

// DefineObjArray defines a reference array class.
func (r *Registry) DefineObjArray(name string) (*Class, error) {
	return r.define(&Class{Name: name, Kind: KindObjArray, ElemSize: mem.PtrSize})
}

// Lookup returns the class named name.
func (r *Registry) Lookup(name string) (*Class, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byName[name]
	return c, ok
}

// Classes returns all defined classes ordered by ID.
func (r *Registry) Classes() []*Class {
	return slices.Clone((*r.classes.Load())[1:])
}

// ClassAt resolves the descriptor at addr.
func (r *Registry) ClassAt(addr mem.Address) (*Class, error) {
	if !addr.IsAligned() || !r.arena.Region().Covers(addr, descriptorSize) {
		return nil, fmt.Errorf("%w: %v", ErrNoClass, addr)
	}
	w := r.arena.LoadWord(addr)
	if w>>32 != descriptorMagic {
		return nil, fmt.Errorf("%w: %v", ErrNoClass, addr)
	}
	list := *r.classes.Load()
	id := uint32(w)
	if int(id) >= len(list) || list[id] == nil || list[id].Addr != addr {
		return nil, fmt.Errorf("%w: %v (id %d)", ErrNoClass, addr, id)
	}
	return list[id], nil
}

func (r *Registry) define(c *Class) (*Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[c.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateClass, c.Name)
	}
	addr, err := r.perm.Alloc(descriptorSize)
	if err != nil {
		return nil, fmt.Errorf("layout: allocate descriptor for %s: %w", c.Name, err)
	}

	old := *r.classes.Load()
	c.ID = uint32(len(old))
	c.Addr = addr

	r.arena.StoreWord(addr, descriptorMagic<<32|uint64(c.ID))
	r.arena.StoreWord(addr+8, uint64(c.Kind)|c.ElemSize<<8)
	r.arena.StoreWord(addr+16, c.Size)
	r.arena.StoreWord(addr+24, uint64(len(c.RefFields)))

	next := append(slices.Clip(old), c)
	r.classes.Store(&next)
	r.byName[c.Name] = c
	return c, nil
}

package layout

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/joshuapare/swiper/heap/header"
	"github.com/joshuapare/swiper/internal/mem"
)

// Obj is a view of a fixed-size instance.
type Obj struct {
	arena *mem.Arena
	addr  mem.Address
}

// ObjAt returns a view of the object at addr.
func ObjAt(a *mem.Arena, addr mem.Address) Obj { return Obj{arena: a, addr: addr} }

// InitObject writes the header of a fresh instance of c at addr.
func InitObject(a *mem.Arena, addr mem.Address, c *Class) Obj {
	header.Init(a, addr, c.Addr)
	return ObjAt(a, addr)
}

// Address returns the object address.
func (o Obj) Address() mem.Address { return o.addr }

// Header returns the object header.
func (o Obj) Header() header.Header { return header.At(o.arena, o.addr) }

// Field reads the reference field at byte offset off. No barrier.
func (o Obj) Field(off uint64) mem.Address { return o.arena.Load(o.addr.Add(off)) }

// SetField writes the reference field at byte offset off. No barrier.
func (o Obj) SetField(off uint64, v mem.Address) { o.arena.Store(o.addr.Add(off), v) }

// Word reads the raw word at byte offset off.
func (o Obj) Word(off uint64) uint64 { return o.arena.LoadWord(o.addr.Add(off)) }

// SetWord writes the raw word at byte offset off.
func (o Obj) SetWord(off uint64, v uint64) { o.arena.StoreWord(o.addr.Add(off), v) }

// Array is a view of an array-shaped object.
type Array struct {
	arena *mem.Arena
	addr  mem.Address
	elem  uint64
}

// ArrayAt returns a view of the array of class c at addr.
func ArrayAt(a *mem.Arena, addr mem.Address, c *Class) Array {
	return Array{arena: a, addr: addr, elem: c.elemSize()}
}

// InitArray writes the header and length of a fresh array of c at addr.
// Elements read as zero.
func InitArray(a *mem.Arena, addr mem.Address, c *Class, n uint64) Array {
	header.Init(a, addr, c.Addr)
	a.StoreWord(addr+LengthOffset, n)
	return ArrayAt(a, addr, c)
}

// Address returns the array address.
func (x Array) Address() mem.Address { return x.addr }

// Header returns the array header.
func (x Array) Header() header.Header { return header.At(x.arena, x.addr) }

// Len returns the number of elements.
func (x Array) Len() uint64 { return x.arena.LoadWord(x.addr + LengthOffset) }

// ElemAddr returns the address of element i.
func (x Array) ElemAddr(i uint64) (mem.Address, error) {
	if i >= x.Len() {
		return mem.Null, fmt.Errorf("%w: %d (len %d)", ErrIndex, i, x.Len())
	}
	return x.addr.Add(DataOffset + i*x.elem), nil
}

// Ref reads reference element i.
func (x Array) Ref(i uint64) (mem.Address, error) {
	slot, err := x.ElemAddr(i)
	if err != nil {
		return mem.Null, err
	}
	return x.arena.Load(slot), nil
}

// Uint reads primitive element i zero-extended to 64 bits.
func (x Array) Uint(i uint64) (uint64, error) {
	slot, err := x.ElemAddr(i)
	if err != nil {
		return 0, err
	}
	b := x.arena.Bytes(slot, x.elem)
	switch x.elem {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	default:
		return binary.LittleEndian.Uint64(b), nil
	}
}

// SetUint writes primitive element i, truncated to the element width.
func (x Array) SetUint(i uint64, v uint64) error {
	slot, err := x.ElemAddr(i)
	if err != nil {
		return err
	}
	b := x.arena.Bytes(slot, x.elem)
	switch x.elem {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
	return nil
}

// Float64 reads element i of a DoubleArray.
func (x Array) Float64(i uint64) (float64, error) {
	v, err := x.Uint(i)
	return math.Float64frombits(v), err
}

// SetFloat64 writes element i of a DoubleArray.
func (x Array) SetFloat64(i uint64, f float64) error {
	return x.SetUint(i, math.Float64bits(f))
}

package layout

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/joshuapare/swiper/heap/header"
	"github.com/joshuapare/swiper/internal/mem"
)

// Str is a view of an immutable string object.
type Str struct {
	arena *mem.Arena
	addr  mem.Address
}

// StrAt returns a view of the string at addr.
func StrAt(a *mem.Arena, addr mem.Address) Str { return Str{arena: a, addr: addr} }

// InitStr writes a string of class c holding data at addr.
func InitStr(a *mem.Arena, addr mem.Address, c *Class, data []byte) Str {
	header.Init(a, addr, c.Addr)
	a.StoreWord(addr+LengthOffset, uint64(len(data)))
	if len(data) > 0 {
		copy(a.Bytes(addr+DataOffset, uint64(len(data))), data)
	}
	return StrAt(a, addr)
}

// Address returns the string address.
func (s Str) Address() mem.Address { return s.addr }

// Len returns the byte length.
func (s Str) Len() uint64 { return s.arena.LoadWord(s.addr + LengthOffset) }

// Bytes returns the content. The slice aliases heap memory and is only
// valid until the next collection.
func (s Str) Bytes() []byte {
	n := s.Len()
	if n == 0 {
		return nil
	}
	return s.arena.Bytes(s.addr+DataOffset, n)
}

// String returns a copy of the raw content.
func (s Str) String() string { return string(s.Bytes()) }

// Text decodes the content for display: UTF-8 when valid, otherwise
// ISO-8859-1 so every byte maps to a rune.
func (s Str) Text() string {
	b := s.Bytes()
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

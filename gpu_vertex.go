// gpu_vertex.go - Vertex attribute formats and the vertex parser compiler

/*
 ██▓     ▄▄▄      ▒███████▒ █    ██  ██▓     ██▓
▓██▒    ▒████▄    ▒ ▒ ▒ ▄▀░ ██  ▓██▒▓██▒    ▓██▒
▒██░    ▒██  ▀█▄  ░ ▒ ▄▀▒░ ▓██  ▒██░▒██░    ▒██▒
▒██░    ░██▄▄▄▄██   ▄▀▒   ░▓▓█  ░██░▒██░    ░██░
░██████▒ ▓█   ▓██▒▒███████▒▒▒█████▓ ░██████▒░██░
░ ▒░▓  ░ ▒▒   ▓▒█░░▒▒ ▓░▒░▒░▒▓▒ ▒ ▒ ░ ▒░▓  ░░▓
░ ░ ▒  ░  ▒   ▒▒ ░░░▒ ▒ ░ ▒░░▒░ ░ ░ ░ ░ ▒  ░ ▒ ░
  ░ ░     ░   ▒   ░ ░ ░ ░ ░ ░░░ ░ ░   ░ ░    ▒ ░
    ░  ░      ░  ░  ░ ░       ░         ░  ░ ░
                  ░

(c) 2025 - 2026 the lazuli authors
https://github.com/vxpm/lazuli
License: GPLv3 or later
*/

/*
gpu_vertex.go - Vertex format compiler

A draw command's vertex stream has no self-describing layout: the wire
format is fully determined by the vertex configuration descriptor (which
attributes are present and whether they are inline or indexed) and the
active attribute table entry (component counts, storage formats and fixed
point scale). Parsing speed matters, so instead of re-interpreting the
descriptor bits per vertex, the compiler builds a chain of attribute reader
closures once per distinct descriptor and caches it keyed by the raw
register bit patterns. Descriptor registers are only ever observed between
draws, so a cached parser can never go stale and the cache needs no
invalidation.
*/

package main

import (
	"encoding/binary"
	"math"
)

// AttributeMode says how one attribute appears in the vertex stream.
type AttributeMode uint8

const (
	AttrNone AttributeMode = iota
	AttrDirect
	AttrIndex8
	AttrIndex16
)

// CoordFormat is the storage format of position, normal and texture
// coordinate components.
type CoordFormat uint8

const (
	CoordU8 CoordFormat = iota
	CoordI8
	CoordU16
	CoordI16
	CoordF32
)

func (f CoordFormat) size() int {
	switch f {
	case CoordU8, CoordI8:
		return 1
	case CoordU16, CoordI16:
		return 2
	}
	return 4
}

// ColorFormat is the storage format of vertex colors.
type ColorFormat uint8

const (
	ColorRgb565 ColorFormat = iota
	ColorRgb888
	ColorRgb888x
	ColorRgba4444
	ColorRgba6666
	ColorRgba8888
)

func (f ColorFormat) size() int {
	switch f {
	case ColorRgb565, ColorRgba4444:
		return 2
	case ColorRgb888, ColorRgba6666:
		return 3
	}
	return 4
}

// Vertex array indices into the CP array pointer registers.
const (
	ARRAY_POSITION = 0
	ARRAY_NORMAL   = 1
	ARRAY_COLOR0   = 2
	ARRAY_COLOR1   = 3
	ARRAY_TEX0     = 4
	ARRAY_COUNT    = 12
)

// VertexArrays holds the indexed-attribute base pointers and strides from
// the CP array registers, resolved against guest memory.
type VertexArrays struct {
	Base   [ARRAY_COUNT]uint32
	Stride [ARRAY_COUNT]uint32
	bus    *MemoryBus
}

// Vertex is one fully decoded vertex.
type Vertex struct {
	Position  [3]float32
	Normal    [9]float32
	Colors    [2][4]uint8
	TexCoords [8][2]float32
	PosMatIdx uint8
	TexMatIdx [8]uint8
}

// ParserKey is the raw descriptor bit pattern a compiled parser was built
// from.
type ParserKey struct {
	VCDLo uint32
	VCDHi uint32
	VatA  uint32
	VatB  uint32
	VatC  uint32
}

type vertexStream struct {
	data []byte
	pos  int
}

func (s *vertexStream) take(n int) ([]byte, bool) {
	if s.pos+n > len(s.data) {
		return nil, false
	}
	b := s.data[s.pos:]
	s.pos += n
	return b, true
}

// attrReader decodes one attribute of one vertex. Returns false when the
// stream runs dry, which makes the whole command incomplete.
type attrReader func(s *vertexStream, arrays *VertexArrays, v *Vertex) bool

// VertexParser is a compiled decoder for one exact descriptor.
type VertexParser struct {
	Key     ParserKey
	readers []attrReader
}

// Parse decodes up to count vertices from data. Returns the decoded
// vertices and bytes consumed; ok is false if data ends mid-vertex, in
// which case nothing should be consumed by the caller.
func (p *VertexParser) Parse(data []byte, arrays *VertexArrays, count int) ([]Vertex, int, bool) {
	s := &vertexStream{data: data}
	out := make([]Vertex, count)
	for i := 0; i < count; i++ {
		for _, rd := range p.readers {
			if !rd(s, arrays, &out[i]) {
				return nil, 0, false
			}
		}
	}
	return out, s.pos, true
}

// ParserCache maps descriptor bit patterns to compiled parsers.
type ParserCache struct {
	parsers map[ParserKey]*VertexParser
	hits    uint64
	misses  uint64
}

func NewParserCache() *ParserCache {
	return &ParserCache{parsers: make(map[ParserKey]*VertexParser)}
}

// GetOrBuild returns the parser for the descriptor, compiling on a miss.
func (pc *ParserCache) GetOrBuild(key ParserKey) *VertexParser {
	if p, ok := pc.parsers[key]; ok {
		pc.hits++
		return p
	}
	pc.misses++
	p := compileParser(key)
	pc.parsers[key] = p
	return p
}

// Stats reports cache hits and misses for the monitor.
func (pc *ParserCache) Stats() (uint64, uint64) {
	return pc.hits, pc.misses
}

// descriptor field extraction

func vcdMode(vcd uint32, shift uint32) AttributeMode {
	return AttributeMode(vcd >> shift & 3)
}

type coordLayout struct {
	count  int
	format CoordFormat
	shift  uint8
}

func coordScale(format CoordFormat, shift uint8) float32 {
	if format == CoordF32 {
		return 1
	}
	return float32(math.Pow(2, -float64(shift)))
}

// decodeCoord reads one component in the given format.
func decodeCoord(format CoordFormat, b []byte) float32 {
	switch format {
	case CoordU8:
		return float32(b[0])
	case CoordI8:
		return float32(int8(b[0]))
	case CoordU16:
		return float32(binary.BigEndian.Uint16(b))
	case CoordI16:
		return float32(int16(binary.BigEndian.Uint16(b)))
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b))
}

func decodeColor(format ColorFormat, b []byte) [4]uint8 {
	switch format {
	case ColorRgb565:
		v := binary.BigEndian.Uint16(b)
		r := uint8(v >> 11 & 0x1F)
		g := uint8(v >> 5 & 0x3F)
		bl := uint8(v & 0x1F)
		return [4]uint8{r<<3 | r>>2, g<<2 | g>>4, bl<<3 | bl>>2, 255}
	case ColorRgb888:
		return [4]uint8{b[0], b[1], b[2], 255}
	case ColorRgb888x:
		return [4]uint8{b[0], b[1], b[2], 255}
	case ColorRgba4444:
		v := binary.BigEndian.Uint16(b)
		r := uint8(v >> 12 & 0xF)
		g := uint8(v >> 8 & 0xF)
		bl := uint8(v >> 4 & 0xF)
		a := uint8(v & 0xF)
		return [4]uint8{r<<4 | r, g<<4 | g, bl<<4 | bl, a<<4 | a}
	case ColorRgba6666:
		v := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
		r := uint8(v >> 18 & 0x3F)
		g := uint8(v >> 12 & 0x3F)
		bl := uint8(v >> 6 & 0x3F)
		a := uint8(v & 0x3F)
		return [4]uint8{r<<2 | r>>4, g<<2 | g>>4, bl<<2 | bl>>4, a<<2 | a>>4}
	}
	return [4]uint8{b[0], b[1], b[2], b[3]}
}

// fetchIndexed resolves an indexed attribute element into a byte window.
func fetchIndexed(arrays *VertexArrays, array int, index uint32, size int) ([]byte, bool) {
	addr := arrays.Base[array] + index*arrays.Stride[array]
	return arrays.bus.Slice(addr, uint32(size))
}

// readIndex pulls the 8 or 16-bit element index off the stream.
func readIndex(mode AttributeMode, s *vertexStream) (uint32, bool) {
	if mode == AttrIndex8 {
		b, ok := s.take(1)
		if !ok {
			return 0, false
		}
		return uint32(b[0]), true
	}
	b, ok := s.take(2)
	if !ok {
		return 0, false
	}
	return uint32(binary.BigEndian.Uint16(b)), true
}

// buildCoordReader compiles one position, normal or texcoord attribute.
// store receives the decoded components.
func buildCoordReader(mode AttributeMode, array int, lay coordLayout, store func(v *Vertex, comps []float32)) attrReader {
	compSize := lay.format.size()
	total := compSize * lay.count
	scale := coordScale(lay.format, lay.shift)
	format := lay.format
	count := lay.count

	decodeInto := func(b []byte, v *Vertex) {
		var comps [9]float32
		for i := 0; i < count; i++ {
			comps[i] = decodeCoord(format, b[i*compSize:]) * scale
		}
		store(v, comps[:count])
	}

	if mode == AttrDirect {
		return func(s *vertexStream, _ *VertexArrays, v *Vertex) bool {
			b, ok := s.take(total)
			if !ok {
				return false
			}
			decodeInto(b, v)
			return true
		}
	}
	return func(s *vertexStream, arrays *VertexArrays, v *Vertex) bool {
		idx, ok := readIndex(mode, s)
		if !ok {
			return false
		}
		b, ok := fetchIndexed(arrays, array, idx, total)
		if !ok {
			return true // index points outside memory, drop the attribute
		}
		decodeInto(b, v)
		return true
	}
}

func buildColorReader(mode AttributeMode, array int, format ColorFormat, slot int) attrReader {
	size := format.size()
	if mode == AttrDirect {
		return func(s *vertexStream, _ *VertexArrays, v *Vertex) bool {
			b, ok := s.take(size)
			if !ok {
				return false
			}
			v.Colors[slot] = decodeColor(format, b)
			return true
		}
	}
	return func(s *vertexStream, arrays *VertexArrays, v *Vertex) bool {
		idx, ok := readIndex(mode, s)
		if !ok {
			return false
		}
		b, ok := fetchIndexed(arrays, array, idx, size)
		if !ok {
			return true
		}
		v.Colors[slot] = decodeColor(format, b)
		return true
	}
}

func buildMatIdxReader(store func(v *Vertex, idx uint8)) attrReader {
	return func(s *vertexStream, _ *VertexArrays, v *Vertex) bool {
		b, ok := s.take(1)
		if !ok {
			return false
		}
		store(v, b[0])
		return true
	}
}

// texLayout pulls the count/format/shift triple for texcoord t out of the
// VAT group registers.
func texLayout(key ParserKey, t int) coordLayout {
	var count, format, shift uint32
	switch {
	case t == 0:
		count = key.VatA >> 21 & 1
		format = key.VatA >> 22 & 7
		shift = key.VatA >> 25 & 0x1F
	case t <= 3:
		off := uint32(t-1) * 9
		count = key.VatB >> off & 1
		format = key.VatB >> (off + 1) & 7
		shift = key.VatB >> (off + 4) & 0x1F
	case t == 4:
		count = key.VatB >> 27 & 1
		format = key.VatB >> 28 & 7
		shift = key.VatC & 0x1F
	default:
		off := uint32(t-5)*9 + 5
		count = key.VatC >> off & 1
		format = key.VatC >> (off + 1) & 7
		shift = key.VatC >> (off + 4) & 0x1F
	}
	return coordLayout{count: int(count) + 1, format: CoordFormat(format), shift: uint8(shift)}
}

// compileParser turns a descriptor into its reader chain. Attribute order
// on the wire is fixed: matrix indices, position, normal, colors, then
// texture coordinates.
func compileParser(key ParserKey) *VertexParser {
	p := &VertexParser{Key: key}

	if key.VCDLo&1 != 0 {
		p.readers = append(p.readers, buildMatIdxReader(func(v *Vertex, idx uint8) {
			v.PosMatIdx = idx
		}))
	}
	for t := 0; t < 8; t++ {
		if key.VCDLo>>(1+uint32(t))&1 != 0 {
			slot := t
			p.readers = append(p.readers, buildMatIdxReader(func(v *Vertex, idx uint8) {
				v.TexMatIdx[slot] = idx
			}))
		}
	}

	if mode := vcdMode(key.VCDLo, 9); mode != AttrNone {
		lay := coordLayout{
			count:  int(key.VatA&1) + 2,
			format: CoordFormat(key.VatA >> 1 & 7),
			shift:  uint8(key.VatA >> 4 & 0x1F),
		}
		p.readers = append(p.readers, buildCoordReader(mode, ARRAY_POSITION, lay, func(v *Vertex, comps []float32) {
			copy(v.Position[:], comps)
		}))
	}

	if mode := vcdMode(key.VCDLo, 11); mode != AttrNone {
		format := CoordFormat(key.VatA >> 10 & 7)
		// Normals use a fixed point position: 6 for 8-bit, 14 for 16-bit.
		var shift uint8
		switch format {
		case CoordI8, CoordU8:
			shift = 6
		case CoordI16, CoordU16:
			shift = 14
		}
		count := 3
		if key.VatA>>9&1 != 0 {
			count = 9
		}
		lay := coordLayout{count: count, format: format, shift: shift}
		p.readers = append(p.readers, buildCoordReader(mode, ARRAY_NORMAL, lay, func(v *Vertex, comps []float32) {
			copy(v.Normal[:], comps)
		}))
	}

	if mode := vcdMode(key.VCDLo, 13); mode != AttrNone {
		p.readers = append(p.readers, buildColorReader(mode, ARRAY_COLOR0, ColorFormat(key.VatA>>14&7), 0))
	}
	if mode := vcdMode(key.VCDLo, 15); mode != AttrNone {
		p.readers = append(p.readers, buildColorReader(mode, ARRAY_COLOR1, ColorFormat(key.VatA>>18&7), 1))
	}

	for t := 0; t < 8; t++ {
		mode := vcdMode(key.VCDHi, uint32(t)*2)
		if mode == AttrNone {
			continue
		}
		slot := t
		lay := texLayout(key, t)
		p.readers = append(p.readers, buildCoordReader(mode, ARRAY_TEX0+t, lay, func(v *Vertex, comps []float32) {
			copy(v.TexCoords[slot][:], comps)
		}))
	}

	return p
}

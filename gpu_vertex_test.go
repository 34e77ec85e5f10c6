// gpu_vertex_test.go - Vertex parser compilation, dequantisation, cache

/*
(c) 2025 - 2026 the lazuli authors
License: GPLv3 or later
*/

package main

import (
	"encoding/binary"
	"math"
	"testing"
)

// Descriptor bits: position present, direct, three f32 components.
func posF32Key() ParserKey {
	return ParserKey{
		VCDLo: uint32(AttrDirect) << 9,
		VatA:  1 | uint32(CoordF32)<<1,
	}
}

func f32be(vals ...float32) []byte {
	out := make([]byte, 0, len(vals)*4)
	for _, v := range vals {
		out = binary.BigEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

func TestParseDirectFloatPositions(t *testing.T) {
	p := compileParser(posF32Key())
	data := f32be(1, 2, 3, 4, 5, 6)

	verts, consumed, ok := p.Parse(data, &VertexArrays{}, 2)
	if !ok {
		t.Fatalf("parse failed")
	}
	if consumed != 24 {
		t.Fatalf("consumed %d bytes, want 24", consumed)
	}
	if verts[0].Position != [3]float32{1, 2, 3} || verts[1].Position != [3]float32{4, 5, 6} {
		t.Fatalf("positions = %v, %v", verts[0].Position, verts[1].Position)
	}
}

func TestParseFixedPointDequant(t *testing.T) {
	// Two-component i16 position with scale 8: raw / 256.
	key := ParserKey{
		VCDLo: uint32(AttrDirect) << 9,
		VatA:  uint32(CoordI16)<<1 | 8<<4, // count bit clear: 2 components
	}
	p := compileParser(key)

	data := []byte{0x01, 0x00, 0xFF, 0x00} // 256, -256
	verts, consumed, ok := p.Parse(data, &VertexArrays{}, 1)
	if !ok {
		t.Fatalf("parse failed")
	}
	if consumed != 4 {
		t.Fatalf("consumed %d, want 4 (two i16 components)", consumed)
	}
	if verts[0].Position[0] != 1.0 || verts[0].Position[1] != -1.0 {
		t.Fatalf("dequantised position = %v", verts[0].Position)
	}
	if verts[0].Position[2] != 0 {
		t.Fatalf("third component written on a two-component format")
	}
}

func TestParseIndexedPosition(t *testing.T) {
	bus := NewMemoryBus()
	base := uint32(0x1000)
	stride := uint32(12)
	for i := 0; i < 4; i++ {
		copy(mustSlice(t, bus, base+uint32(i)*stride, 12), f32be(float32(i), 0, 0))
	}

	key := posF32Key()
	key.VCDLo = uint32(AttrIndex16) << 9
	p := compileParser(key)

	arrays := &VertexArrays{bus: bus}
	arrays.Base[ARRAY_POSITION] = base
	arrays.Stride[ARRAY_POSITION] = stride

	data := []byte{0x00, 0x03, 0x00, 0x01}
	verts, consumed, ok := p.Parse(data, arrays, 2)
	if !ok {
		t.Fatalf("parse failed")
	}
	if consumed != 4 {
		t.Fatalf("consumed %d, want 4 (two u16 indices)", consumed)
	}
	if verts[0].Position[0] != 3 || verts[1].Position[0] != 1 {
		t.Fatalf("indexed positions = %v, %v", verts[0].Position[0], verts[1].Position[0])
	}
}

func TestParseIndexOutOfRangeDropsAttribute(t *testing.T) {
	bus := NewMemoryBus()
	key := posF32Key()
	key.VCDLo = uint32(AttrIndex8) << 9
	p := compileParser(key)

	arrays := &VertexArrays{bus: bus}
	arrays.Base[ARRAY_POSITION] = RAM_SIZE - 4
	arrays.Stride[ARRAY_POSITION] = 12

	verts, consumed, ok := p.Parse([]byte{0x05}, arrays, 1)
	if !ok {
		t.Fatalf("out-of-range index failed the whole parse")
	}
	if consumed != 1 {
		t.Fatalf("consumed %d, want 1", consumed)
	}
	if verts[0].Position != [3]float32{} {
		t.Fatalf("dropped attribute left data: %v", verts[0].Position)
	}
}

func TestParseColorFormats(t *testing.T) {
	key := ParserKey{
		VCDLo: uint32(AttrDirect)<<13 | uint32(AttrDirect)<<15,
		VatA:  uint32(ColorRgb565)<<14 | uint32(ColorRgba8888)<<18,
	}
	p := compileParser(key)

	// 565 white, then 8888 half-transparent red.
	data := []byte{0xFF, 0xFF, 0x80, 0x20, 0x40, 0x7F}
	verts, _, ok := p.Parse(data, &VertexArrays{}, 1)
	if !ok {
		t.Fatalf("parse failed")
	}
	if verts[0].Colors[0] != [4]uint8{255, 255, 255, 255} {
		t.Fatalf("565 white = %v", verts[0].Colors[0])
	}
	if verts[0].Colors[1] != [4]uint8{0x80, 0x20, 0x40, 0x7F} {
		t.Fatalf("8888 = %v", verts[0].Colors[1])
	}
}

func TestParseMatrixIndexAndTexcoord(t *testing.T) {
	key := ParserKey{
		// Position matrix index, position, one f32 texcoord pair.
		VCDLo: 1 | uint32(AttrDirect)<<9,
		VCDHi: uint32(AttrDirect),
		VatA:  1 | uint32(CoordF32)<<1 | 1<<21 | uint32(CoordF32)<<22,
	}
	p := compileParser(key)

	data := append([]byte{7}, f32be(1, 2, 3, 0.5, 0.25)...)
	verts, consumed, ok := p.Parse(data, &VertexArrays{}, 1)
	if !ok {
		t.Fatalf("parse failed")
	}
	if consumed != 1+5*4 {
		t.Fatalf("consumed %d", consumed)
	}
	if verts[0].PosMatIdx != 7 {
		t.Fatalf("posmtx = %d, want 7", verts[0].PosMatIdx)
	}
	if verts[0].TexCoords[0] != [2]float32{0.5, 0.25} {
		t.Fatalf("texcoord = %v", verts[0].TexCoords[0])
	}
}

func TestParseTruncatedVertexFails(t *testing.T) {
	p := compileParser(posF32Key())
	data := f32be(1, 2, 3, 4) // one full vertex plus one component

	if _, _, ok := p.Parse(data, &VertexArrays{}, 2); ok {
		t.Fatalf("mid-vertex truncation parsed as complete")
	}
	// The full prefix alone is fine.
	if _, consumed, ok := p.Parse(data, &VertexArrays{}, 1); !ok || consumed != 12 {
		t.Fatalf("one-vertex parse consumed %d ok=%v", consumed, ok)
	}
}

func TestParserCacheReuse(t *testing.T) {
	pc := NewParserCache()
	a := pc.GetOrBuild(posF32Key())
	b := pc.GetOrBuild(posF32Key())
	if a != b {
		t.Fatalf("identical descriptors compiled twice")
	}

	other := posF32Key()
	other.VatA |= 8 << 4 // different scale is a different parser
	c := pc.GetOrBuild(other)
	if c == a {
		t.Fatalf("distinct descriptors shared a parser")
	}

	hits, misses := pc.Stats()
	if hits != 1 || misses != 2 {
		t.Fatalf("stats = %d hits %d misses, want 1/2", hits, misses)
	}
}

func TestNormalFixedShift(t *testing.T) {
	key := ParserKey{
		VCDLo: uint32(AttrDirect) << 11,
		VatA:  uint32(CoordI8) << 10,
	}
	p := compileParser(key)

	data := []byte{0x40, 0xC0, 0x00} // 64, -64, 0 at 1.6 fixed point
	verts, _, ok := p.Parse(data, &VertexArrays{}, 1)
	if !ok {
		t.Fatalf("parse failed")
	}
	if verts[0].Normal[0] != 1.0 || verts[0].Normal[1] != -1.0 {
		t.Fatalf("normal = %v, want 1,-1 with the fixed 6-bit shift", verts[0].Normal[:3])
	}
}

func mustSlice(t *testing.T, bus *MemoryBus, addr, length uint32) []byte {
	t.Helper()
	s, ok := bus.Slice(addr, length)
	if !ok {
		t.Fatalf("slice %08x+%d failed", addr, length)
	}
	return s
}

package tiles

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"parkterrain/internal/heightfield"
)

// Storage persists sampled tiles under opaque string keys.
type Storage interface {
	Load(key string) (heightfield.Grid, bool, error)
	Save(key string, grid heightfield.Grid) error
	Delete(key string) error
	ForEach(fn func(key string, grid heightfield.Grid) bool) error
	Close() error
}

const (
	recordVersion    byte = 1
	recordHeaderSize      = 1 + 4*8 + 2*4
)

var errCorruptRecord = errors.New("tiles: corrupt record")

// encodeGrid lays a grid out as a version byte, origin and step as float64,
// resolution as uint32, then the samples. Everything is little endian.
func encodeGrid(grid heightfield.Grid) []byte {
	buf := make([]byte, recordHeaderSize+8*len(grid.Values))
	buf[0] = recordVersion
	off := 1
	for _, v := range []float64{grid.OriginX, grid.OriginZ, grid.StepX, grid.StepZ} {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v))
		off += 8
	}
	binary.LittleEndian.PutUint32(buf[off:], uint32(grid.ResX))
	binary.LittleEndian.PutUint32(buf[off+4:], uint32(grid.ResZ))
	off += 8
	for _, v := range grid.Values {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v))
		off += 8
	}
	return buf
}

func decodeGrid(data []byte) (heightfield.Grid, error) {
	if len(data) < recordHeaderSize {
		return heightfield.Grid{}, fmt.Errorf("%w: %d byte header", errCorruptRecord, len(data))
	}
	if data[0] != recordVersion {
		return heightfield.Grid{}, fmt.Errorf("%w: version %d", errCorruptRecord, data[0])
	}
	off := 1
	readFloat := func() float64 {
		v := math.Float64frombits(binary.LittleEndian.Uint64(data[off:]))
		off += 8
		return v
	}
	grid := heightfield.Grid{
		OriginX: readFloat(),
		OriginZ: readFloat(),
		StepX:   readFloat(),
		StepZ:   readFloat(),
	}
	grid.ResX = int(binary.LittleEndian.Uint32(data[off:]))
	grid.ResZ = int(binary.LittleEndian.Uint32(data[off+4:]))
	off += 8

	count := grid.ResX * grid.ResZ
	if len(data)-off != 8*count {
		return heightfield.Grid{}, fmt.Errorf("%w: %d payload bytes for %dx%d samples", errCorruptRecord, len(data)-off, grid.ResX, grid.ResZ)
	}
	grid.Values = make([]float64, count)
	for i := range grid.Values {
		grid.Values[i] = readFloat()
	}
	return grid, nil
}

func cloneGrid(grid heightfield.Grid) heightfield.Grid {
	dup := grid
	dup.Values = make([]float64, len(grid.Values))
	copy(dup.Values, grid.Values)
	return dup
}

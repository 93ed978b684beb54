// Package geotifftest encodes small GeoTIFFs for tests.
package geotifftest

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"math"
	"slices"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/spf13/afero"
)

// TIFF field types.
const (
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

// A GeoTIFF describes a single band GeoTIFF. Zero values select defaults:
// little endian, float32 samples, no compression, one strip per row, and
// EPSG:4326.
type GeoTIFF struct {
	Width         int
	Height        int
	Samples       []float64 // Row-major, Width*Height.
	ByteOrder     ByteOrder
	SampleFormat  int // 1 uint, 2 int, 3 float.
	BitsPerSample int
	Compression   int // 1 none, 8 deflate.
	Predictor     int // 1 none, 2 horizontal.
	RowsPerStrip  int
	TileWidth     int // Tiles are used if non-zero.
	TileLength    int
	West          float64
	North         float64
	PixelSizeX    float64
	PixelSizeY    float64
	EPSG          int
	Projected     bool
	NoCRS         bool
	PixelIsPoint  bool
	NoData        string
	LongTags      bool // Write dimension and block size tags as LONG.
}

// A ByteOrder is a byte order that can also append.
type ByteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

type entry struct {
	tag       uint16
	fieldType uint16
	count     int
	value     []byte
}

// Uniform returns a width by height float32 GeoTIFF with every sample set to
// value covering bounds in EPSG:4326.
func Uniform(width, height int, west, south, east, north, value float64) *GeoTIFF {
	samples := make([]float64, width*height)
	for i := range samples {
		samples[i] = value
	}
	return &GeoTIFF{
		Width:      width,
		Height:     height,
		Samples:    samples,
		West:       west,
		North:      north,
		PixelSizeX: (east - west) / float64(width),
		PixelSizeY: (north - south) / float64(height),
	}
}

// Gradient returns a width by height GeoTIFF where the sample at (row, col)
// is 100*row + col, with one degree pixels whose top left corner is at (west,
// north).
func Gradient(width, height int, west, north float64) *GeoTIFF {
	samples := make([]float64, width*height)
	for row := range height {
		for col := range width {
			samples[row*width+col] = float64(100*row + col)
		}
	}
	return &GeoTIFF{
		Width:      width,
		Height:     height,
		Samples:    samples,
		West:       west,
		North:      north,
		PixelSizeX: 1,
		PixelSizeY: 1,
	}
}

// Bytes returns g encoded as a TIFF.
func (g *GeoTIFF) Bytes() []byte {
	var byteOrder ByteOrder = binary.LittleEndian
	if g.ByteOrder != nil {
		byteOrder = g.ByteOrder
	}
	sampleFormat := defaultInt(g.SampleFormat, 3)
	bitsPerSample := defaultInt(g.BitsPerSample, 32)
	compression := defaultInt(g.Compression, 1)
	predictor := defaultInt(g.Predictor, 1)
	epsg := defaultInt(g.EPSG, 4326)

	tiled := g.TileWidth != 0
	blockWidth, blockLength := g.Width, defaultInt(g.RowsPerStrip, 1)
	if tiled {
		blockWidth, blockLength = g.TileWidth, g.TileLength
	}
	blocksAcross := (g.Width + blockWidth - 1) / blockWidth
	blocksDown := (g.Height + blockLength - 1) / blockLength

	buf := &bytes.Buffer{}
	buf.Write(make([]byte, 8))
	var offsets, byteCounts []uint32
	for blockRow := range blocksDown {
		for blockCol := range blocksAcross {
			rows := blockLength
			if !tiled {
				rows = min(blockLength, g.Height-blockRow*blockLength)
			}
			data := make([]byte, 0, rows*blockWidth*bitsPerSample/8)
			for r := range rows {
				rowData := make([]byte, 0, blockWidth*bitsPerSample/8)
				for c := range blockWidth {
					row, col := blockRow*blockLength+r, blockCol*blockWidth+c
					var sample float64
					if row < g.Height && col < g.Width {
						sample = g.Samples[row*g.Width+col]
					}
					rowData = appendSample(rowData, byteOrder, sampleFormat, bitsPerSample, sample)
				}
				if predictor == 2 {
					applyHorizontalPredictor(rowData, byteOrder, bitsPerSample/8)
				}
				data = append(data, rowData...)
			}
			if compression == 8 {
				compressed := &bytes.Buffer{}
				w := zlib.NewWriter(compressed)
				_, _ = w.Write(data)
				_ = w.Close()
				data = compressed.Bytes()
			}
			offsets = append(offsets, uint32(buf.Len()))
			byteCounts = append(byteCounts, uint32(len(data)))
			buf.Write(data)
			if buf.Len()%2 != 0 {
				buf.WriteByte(0)
			}
		}
	}

	sizeEntry := func(tag uint16, value int) entry {
		if g.LongTags {
			return longEntry(byteOrder, tag, uint32(value))
		}
		return shortEntry(byteOrder, tag, value)
	}

	entries := []entry{
		sizeEntry(256, g.Width),
		sizeEntry(257, g.Height),
		shortEntry(byteOrder, 258, bitsPerSample),
		shortEntry(byteOrder, 259, compression),
		shortEntry(byteOrder, 262, 1),
		shortEntry(byteOrder, 277, 1),
		shortEntry(byteOrder, 284, 1),
		shortEntry(byteOrder, 339, sampleFormat),
		doubleEntry(byteOrder, 33550, g.PixelSizeX, g.PixelSizeY, 0),
		doubleEntry(byteOrder, 33922, 0, 0, 0, g.West, g.North, 0),
	}
	if predictor != 1 {
		entries = append(entries, shortEntry(byteOrder, 317, predictor))
	}
	if tiled {
		entries = append(entries,
			sizeEntry(322, g.TileWidth),
			sizeEntry(323, g.TileLength),
			longEntry(byteOrder, 324, offsets...),
			longEntry(byteOrder, 325, byteCounts...),
		)
	} else {
		entries = append(entries,
			longEntry(byteOrder, 273, offsets...),
			sizeEntry(278, blockLength),
			longEntry(byteOrder, 279, byteCounts...),
		)
	}
	if !g.NoCRS {
		modelType, crsKey := 2, 2048
		if g.Projected {
			modelType, crsKey = 1, 3072
		}
		rasterType := 1
		if g.PixelIsPoint {
			rasterType = 2
		}
		entries = append(entries, shortEntry(byteOrder, 34735,
			1, 1, 0, 3,
			1024, 0, 1, modelType,
			1025, 0, 1, rasterType,
			crsKey, 0, 1, epsg,
		))
	}
	if g.NoData != "" {
		entries = append(entries, entry{
			tag:       42113,
			fieldType: typeASCII,
			count:     len(g.NoData) + 1,
			value:     append([]byte(g.NoData), 0),
		})
	}
	slices.SortFunc(entries, func(a, b entry) int {
		return int(a.tag) - int(b.tag)
	})

	ifdOffset := buf.Len()
	dataOffset := ifdOffset + 2 + 12*len(entries) + 4
	ifd := &bytes.Buffer{}
	data := &bytes.Buffer{}
	ifd.Write(byteOrder.AppendUint16(nil, uint16(len(entries))))
	for _, e := range entries {
		ifd.Write(byteOrder.AppendUint16(nil, e.tag))
		ifd.Write(byteOrder.AppendUint16(nil, e.fieldType))
		ifd.Write(byteOrder.AppendUint32(nil, uint32(e.count)))
		if len(e.value) <= 4 {
			ifd.Write(e.value)
			ifd.Write(make([]byte, 4-len(e.value)))
			continue
		}
		ifd.Write(byteOrder.AppendUint32(nil, uint32(dataOffset+data.Len())))
		data.Write(e.value)
		if data.Len()%2 != 0 {
			data.WriteByte(0)
		}
	}
	ifd.Write(make([]byte, 4))
	buf.Write(ifd.Bytes())
	buf.Write(data.Bytes())

	result := buf.Bytes()
	if byteOrder.Uint16([]byte{0, 1}) == 1 {
		copy(result[0:2], "MM")
	} else {
		copy(result[0:2], "II")
	}
	byteOrder.PutUint16(result[2:4], 42)
	byteOrder.PutUint32(result[4:8], uint32(ifdOffset))
	return result
}

func appendSample(b []byte, byteOrder ByteOrder, sampleFormat, bitsPerSample int, sample float64) []byte {
	switch {
	case sampleFormat == 3 && bitsPerSample == 32:
		return byteOrder.AppendUint32(b, math.Float32bits(float32(sample)))
	case sampleFormat == 3 && bitsPerSample == 64:
		return byteOrder.AppendUint64(b, math.Float64bits(sample))
	case bitsPerSample == 8 && sampleFormat == 2:
		return append(b, byte(int8(sample)))
	case bitsPerSample == 8:
		return append(b, byte(sample))
	case bitsPerSample == 16 && sampleFormat == 2:
		return byteOrder.AppendUint16(b, uint16(int16(sample)))
	case bitsPerSample == 16:
		return byteOrder.AppendUint16(b, uint16(sample))
	case sampleFormat == 2:
		return byteOrder.AppendUint32(b, uint32(int32(sample)))
	default:
		return byteOrder.AppendUint32(b, uint32(sample))
	}
}

func applyHorizontalPredictor(rowData []byte, byteOrder ByteOrder, bytesPerSample int) {
	for i := len(rowData) - bytesPerSample; i >= bytesPerSample; i -= bytesPerSample {
		prev, cur := rowData[i-bytesPerSample:i], rowData[i:i+bytesPerSample]
		switch bytesPerSample {
		case 1:
			cur[0] -= prev[0]
		case 2:
			byteOrder.PutUint16(cur, byteOrder.Uint16(cur)-byteOrder.Uint16(prev))
		case 4:
			byteOrder.PutUint32(cur, byteOrder.Uint32(cur)-byteOrder.Uint32(prev))
		}
	}
}

func shortEntry(byteOrder ByteOrder, tag uint16, values ...int) entry {
	var value []byte
	for _, v := range values {
		value = byteOrder.AppendUint16(value, uint16(v))
	}
	return entry{tag: tag, fieldType: typeShort, count: len(values), value: value}
}

func longEntry(byteOrder ByteOrder, tag uint16, values ...uint32) entry {
	var value []byte
	for _, v := range values {
		value = byteOrder.AppendUint32(value, v)
	}
	return entry{tag: tag, fieldType: typeLong, count: len(values), value: value}
}

func doubleEntry(byteOrder ByteOrder, tag uint16, values ...float64) entry {
	var value []byte
	for _, v := range values {
		value = byteOrder.AppendUint64(value, math.Float64bits(v))
	}
	return entry{tag: tag, fieldType: typeDouble, count: len(values), value: value}
}

func defaultInt(value, defaultValue int) int {
	if value == 0 {
		return defaultValue
	}
	return value
}

// FS returns an in-memory filesystem containing the encoded GeoTIFFs in
// geoTIFFs, keyed by name.
func FS(tb testing.TB, geoTIFFs map[string]*GeoTIFF) fs.FS {
	tb.Helper()
	memFS := afero.NewMemMapFs()
	for name, g := range geoTIFFs {
		if err := afero.WriteFile(memFS, name, g.Bytes(), 0o644); err != nil {
			tb.Fatal(err)
		}
	}
	return afero.NewIOFS(memFS)
}

package geosample

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"strconv"
	"strings"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff/lzw"
)

// TIFF compression schemes.
const (
	compressionNone         = 1
	compressionLZW          = 5
	compressionDeflate      = 8
	compressionAdobeDeflate = 32946
)

// TIFF predictors.
const (
	predictorNone       = 1
	predictorHorizontal = 2
)

// TIFF sample formats.
const (
	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3
)

var errShortRead = errors.New("short read")

// A GeoTIFF is an open GeoTIFF file. It implements Dataset.
type GeoTIFF struct {
	name            string
	file            fs.File
	readerAt        io.ReaderAt
	byteOrder       binary.ByteOrder
	width           int
	height          int
	blockWidth      int
	blockLength     int
	blocksAcross    int
	blocksDown      int
	tiled           bool
	blockOffsets    []uint64
	blockByteCounts []uint64
	compression     int
	predictor       int
	sampleFormat    int
	bitsPerSample   int
	noData          float64
	hasNoData       bool
	geoKeys         *ParsedGeoKeys
	crs             string
	transform       Affine
	inverse         Affine
	blockCacheSize  int
	blockCache      *lru.Cache[int, []float64]
}

// A GeoTIFFOption sets an option on a GeoTIFF.
type GeoTIFFOption func(*GeoTIFF)

// A geoTIFFIFD is a struct into which github.com/google/tiff can unmarshal an
// IFD.
type geoTIFFIFD struct {
	ImageWidth                uint32    `tiff:"field,tag=256"`
	ImageLength               uint32    `tiff:"field,tag=257"`
	BitsPerSample             uint16    `tiff:"field,tag=258"`
	Compression               uint16    `tiff:"field,tag=259"`
	PhotometricInterpretation uint16    `tiff:"field,tag=262"`
	StripOffsets              []uint64  `tiff:"field,tag=273"`
	SamplesPerPixel           uint16    `tiff:"field,tag=277"`
	RowsPerStrip              uint32    `tiff:"field,tag=278"`
	StripByteCounts           []uint64  `tiff:"field,tag=279"`
	PlanarConfiguration       uint16    `tiff:"field,tag=284"`
	Predictor                 uint16    `tiff:"field,tag=317"`
	TileWidth                 uint32    `tiff:"field,tag=322"`
	TileLength                uint32    `tiff:"field,tag=323"`
	TileOffsets               []uint64  `tiff:"field,tag=324"`
	TileByteCounts            []uint64  `tiff:"field,tag=325"`
	SampleFormat              uint16    `tiff:"field,tag=339"`
	ModelPixelScaleTag        []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag          []float64 `tiff:"field,tag=33922"`
	ModelTransformationTag    []float64 `tiff:"field,tag=34264"`
	GeoKeyDirectoryTag        []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParamsTag        []float64 `tiff:"field,tag=34736"`
	GeoASCIIParamsTag         string    `tiff:"field,tag=34737"`
	GDALNoData                string    `tiff:"field,tag=42113"`
}

type readAtSeeker interface {
	io.Reader
	io.ReaderAt
	io.Seeker
}

// OpenGeoTIFF opens the GeoTIFF name in fsys. Only the first IFD is used.
func OpenGeoTIFF(fsys fs.FS, name string, options ...GeoTIFFOption) (*GeoTIFF, error) {
	ok := false

	g := &GeoTIFF{
		name:           name,
		blockCacheSize: 64,
	}
	for _, option := range options {
		option(g)
	}

	file, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	g.file = file
	defer func() {
		if !ok {
			_ = g.file.Close()
		}
	}()

	r, isReadAtSeeker := file.(readAtSeeker)
	if !isReadAtSeeker {
		return nil, fmt.Errorf("%s: random access: %w", name, errors.ErrUnsupported)
	}
	g.readerAt = r

	if g.byteOrder, err = readByteOrder(r); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	tiffTIFF, err := tiff.Parse(r, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if len(tiffTIFF.IFDs()) == 0 {
		return nil, fmt.Errorf("%s: no IFDs: %w", name, errParse)
	}

	var ifd geoTIFFIFD
	if err := tiff.UnmarshalIFD(tiffTIFF.IFDs()[0], &ifd); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if err := g.init(&ifd); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	if g.blockCache, err = lru.New[int, []float64](max(g.blockCacheSize, 1)); err != nil {
		return nil, err
	}

	ok = true
	return g, nil
}

// WithBlockCacheSize sets the number of decoded blocks kept while g is open.
func WithBlockCacheSize(blockCacheSize int) GeoTIFFOption {
	return func(g *GeoTIFF) {
		g.blockCacheSize = blockCacheSize
	}
}

// WithNoData overrides the file's nodata value.
func WithNoData(noData float64) GeoTIFFOption {
	return func(g *GeoTIFF) {
		g.noData = noData
		g.hasNoData = true
	}
}

func (g *GeoTIFF) init(ifd *geoTIFFIFD) error {
	g.width = int(ifd.ImageWidth)
	g.height = int(ifd.ImageLength)
	if g.width == 0 || g.height == 0 {
		return fmt.Errorf("empty image: %w", errParse)
	}

	if ifd.SamplesPerPixel > 1 || ifd.PlanarConfiguration > 1 {
		return fmt.Errorf("%d samples per pixel: %w", ifd.SamplesPerPixel, errors.ErrUnsupported)
	}

	g.compression = defaultInt(int(ifd.Compression), compressionNone)
	switch g.compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionAdobeDeflate:
	default:
		return fmt.Errorf("compression %d: %w", g.compression, errors.ErrUnsupported)
	}
	g.predictor = defaultInt(int(ifd.Predictor), predictorNone)
	if g.predictor != predictorNone && g.predictor != predictorHorizontal {
		return fmt.Errorf("predictor %d: %w", g.predictor, errors.ErrUnsupported)
	}

	g.sampleFormat = defaultInt(int(ifd.SampleFormat), sampleFormatUint)
	g.bitsPerSample = defaultInt(int(ifd.BitsPerSample), 1)
	switch {
	case g.sampleFormat == sampleFormatUint && (g.bitsPerSample == 8 || g.bitsPerSample == 16 || g.bitsPerSample == 32):
	case g.sampleFormat == sampleFormatInt && (g.bitsPerSample == 8 || g.bitsPerSample == 16 || g.bitsPerSample == 32):
	case g.sampleFormat == sampleFormatFloat && (g.bitsPerSample == 32 || g.bitsPerSample == 64):
		if g.predictor == predictorHorizontal {
			return fmt.Errorf("horizontal predictor with floating point samples: %w", errors.ErrUnsupported)
		}
	default:
		return fmt.Errorf("sample format %d with %d bits per sample: %w", g.sampleFormat, g.bitsPerSample, errors.ErrUnsupported)
	}

	if ifd.TileWidth != 0 && ifd.TileLength != 0 {
		g.tiled = true
		g.blockWidth = int(ifd.TileWidth)
		g.blockLength = int(ifd.TileLength)
		g.blockOffsets = ifd.TileOffsets
		g.blockByteCounts = ifd.TileByteCounts
	} else {
		g.blockWidth = g.width
		g.blockLength = defaultInt(int(ifd.RowsPerStrip), g.height)
		g.blockLength = min(g.blockLength, g.height)
		g.blockOffsets = ifd.StripOffsets
		g.blockByteCounts = ifd.StripByteCounts
	}
	g.blocksAcross = (g.width + g.blockWidth - 1) / g.blockWidth
	g.blocksDown = (g.height + g.blockLength - 1) / g.blockLength
	blocksPerImage := g.blocksAcross * g.blocksDown
	if len(g.blockOffsets) != blocksPerImage || len(g.blockByteCounts) != blocksPerImage {
		return errors.New("incorrect number of block byte counts or offsets")
	}

	if !g.hasNoData && ifd.GDALNoData != "" {
		noData, err := strconv.ParseFloat(strings.TrimSpace(strings.Trim(ifd.GDALNoData, "\x00")), 64)
		if err != nil {
			return fmt.Errorf("GDAL_NODATA %q: %w", ifd.GDALNoData, err)
		}
		g.noData = noData
		g.hasNoData = true
	}

	if len(ifd.GeoKeyDirectoryTag) != 0 {
		geoKeys, err := ParseGeoKeys(ifd.GeoKeyDirectoryTag, ifd.GeoDoubleParamsTag, []byte(ifd.GeoASCIIParamsTag))
		if err != nil {
			return err
		}
		g.geoKeys = geoKeys
		g.crs = geoKeys.CRS()
	}

	switch {
	case len(ifd.ModelTransformationTag) == 16:
		m := ifd.ModelTransformationTag
		g.transform = Affine{
			A: m[0], B: m[1], C: m[3],
			D: m[4], E: m[5], F: m[7],
		}
	case len(ifd.ModelPixelScaleTag) >= 2 && len(ifd.ModelTiepointTag) >= 6:
		scaleX, scaleY := ifd.ModelPixelScaleTag[0], ifd.ModelPixelScaleTag[1]
		i, j := ifd.ModelTiepointTag[0], ifd.ModelTiepointTag[1]
		x, y := ifd.ModelTiepointTag[3], ifd.ModelTiepointTag[4]
		g.transform = Affine{
			A: scaleX, C: x - i*scaleX,
			E: -scaleY, F: y + j*scaleY,
		}
	default:
		return fmt.Errorf("missing georeferencing: %w", errors.ErrUnsupported)
	}
	if g.geoKeys.PixelIsPoint() {
		g.transform.C -= 0.5*g.transform.A + 0.5*g.transform.B
		g.transform.F -= 0.5*g.transform.D + 0.5*g.transform.E
	}
	inverse, err := g.transform.Invert()
	if err != nil {
		return err
	}
	g.inverse = inverse

	return nil
}

// Close closes g.
func (g *GeoTIFF) Close() error {
	if g.blockCache != nil {
		g.blockCache.Purge()
	}
	return g.file.Close()
}

// CRS returns g's CRS, or the empty string if g does not declare one.
func (g *GeoTIFF) CRS() string {
	return g.crs
}

func (g *GeoTIFF) GeoKeys() *ParsedGeoKeys {
	return g.geoKeys
}

func (g *GeoTIFF) Transform() Affine {
	return g.transform
}

func (g *GeoTIFF) Width() int {
	return g.width
}

func (g *GeoTIFF) Height() int {
	return g.height
}

func (g *GeoTIFF) Bounds() Bounds {
	return g.transform.BoundsFor(g.width, g.height)
}

// Index returns the (row, col) of the pixel containing (x, y), which may lie
// outside g. Non-finite coordinates return (-1, -1).
func (g *GeoTIFF) Index(x, y float64) (int, int) {
	col, row := g.inverse.Apply(x, y)
	if !isFinite(col) || !isFinite(row) {
		return -1, -1
	}
	return int(math.Floor(row)), int(math.Floor(col))
}

// Read returns the samples of band in window. The window is clipped to g's
// extent, so the returned grid may be smaller than window or empty.
func (g *GeoTIFF) Read(ctx context.Context, band int, window Window) (*Grid, error) {
	if band != 1 {
		return nil, fmt.Errorf("%s: band %d: %w", g.name, band, errors.ErrUnsupported)
	}
	window = window.Intersect(Window{Width: g.width, Height: g.height})
	grid := NewGrid(window.Width, window.Height)
	if window.Empty() {
		return grid, nil
	}

	firstBlockRow := window.Row / g.blockLength
	lastBlockRow := (window.Row + window.Height - 1) / g.blockLength
	firstBlockCol := window.Col / g.blockWidth
	lastBlockCol := (window.Col + window.Width - 1) / g.blockWidth
	for blockRow := firstBlockRow; blockRow <= lastBlockRow; blockRow++ {
		for blockCol := firstBlockCol; blockCol <= lastBlockCol; blockCol++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			blockSamples, err := g.getBlockSamplesCached(blockCol + g.blocksAcross*blockRow)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", g.name, err)
			}
			block := Window{
				Row:    blockRow * g.blockLength,
				Col:    blockCol * g.blockWidth,
				Height: g.blockLength,
				Width:  g.blockWidth,
			}
			overlap := block.Intersect(window)
			for row := overlap.Row; row < overlap.Row+overlap.Height; row++ {
				src := blockSamples[(row-block.Row)*g.blockWidth+overlap.Col-block.Col:]
				dst := grid.Data[(row-window.Row)*grid.Width+overlap.Col-window.Col:]
				copy(dst[:overlap.Width], src[:overlap.Width])
			}
		}
	}
	return grid, nil
}

// blockRows returns the number of rows stored in the block at blockIndex.
// Tiles are always full size; the last strip may be short.
func (g *GeoTIFF) blockRows(blockIndex int) int {
	if g.tiled {
		return g.blockLength
	}
	return min(g.blockLength, g.height-(blockIndex/g.blocksAcross)*g.blockLength)
}

// getBlockSamplesCached returns the decoded samples of the block at
// blockIndex using g's cache.
func (g *GeoTIFF) getBlockSamplesCached(blockIndex int) ([]float64, error) {
	if blockSamples, ok := g.blockCache.Get(blockIndex); ok {
		blockCacheHits.Inc()
		return blockSamples, nil
	}
	blockSamples, err := g.getBlockSamples(blockIndex)
	if err != nil {
		return nil, err
	}
	g.blockCache.Add(blockIndex, blockSamples)
	return blockSamples, nil
}

// getBlockSamples reads, decompresses, and decodes the block at blockIndex.
// Short strips are padded with NaNs to a full block.
func (g *GeoTIFF) getBlockSamples(blockIndex int) ([]float64, error) {
	blockSamples := make([]float64, g.blockWidth*g.blockLength)

	// Sparse blocks have no data.
	if g.blockByteCounts[blockIndex] == 0 {
		for i := range blockSamples {
			blockSamples[i] = math.NaN()
		}
		return blockSamples, nil
	}

	compressedData, err := g.getCompressedBlockData(blockIndex)
	if err != nil {
		return nil, err
	}

	rows := g.blockRows(blockIndex)
	blockData, err := g.decompressBlockData(compressedData, rows*g.blockWidth*g.bitsPerSample/8)
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", blockIndex, err)
	}
	if g.predictor == predictorHorizontal {
		g.undoHorizontalPredictor(blockData, rows)
	}

	g.decodeBlockData(blockSamples, blockData)
	for i := rows * g.blockWidth; i < len(blockSamples); i++ {
		blockSamples[i] = math.NaN()
	}
	blocksDecoded.Inc()
	return blockSamples, nil
}

// getCompressedBlockData returns the compressed data of the block at
// blockIndex.
func (g *GeoTIFF) getCompressedBlockData(blockIndex int) ([]byte, error) {
	blockByteCount := g.blockByteCounts[blockIndex]
	blockOffset := g.blockOffsets[blockIndex]
	compressedData := make([]byte, blockByteCount)
	switch n, err := g.readerAt.ReadAt(compressedData, int64(blockOffset)); {
	case n == int(blockByteCount):
		return compressedData, nil
	case err != nil:
		return nil, err
	default:
		return nil, errShortRead
	}
}

// decompressBlockData decompresses compressedData into size bytes.
func (g *GeoTIFF) decompressBlockData(compressedData []byte, size int) ([]byte, error) {
	var r io.ReadCloser
	switch g.compression {
	case compressionNone:
		if len(compressedData) < size {
			return nil, errShortRead
		}
		return compressedData[:size], nil
	case compressionLZW:
		r = lzw.NewReader(bytes.NewReader(compressedData), lzw.MSB, 8)
	case compressionDeflate, compressionAdobeDeflate:
		var err error
		if r, err = zlib.NewReader(bytes.NewReader(compressedData)); err != nil {
			return nil, err
		}
	}
	defer r.Close()

	blockData := make([]byte, size)
	if _, err := io.ReadFull(r, blockData); err != nil {
		return nil, err
	}
	return blockData, nil
}

// undoHorizontalPredictor reverses horizontal differencing in place.
func (g *GeoTIFF) undoHorizontalPredictor(blockData []byte, rows int) {
	bytesPerSample := g.bitsPerSample / 8
	rowBytes := g.blockWidth * bytesPerSample
	for row := range rows {
		rowData := blockData[row*rowBytes : (row+1)*rowBytes]
		for i := bytesPerSample; i < rowBytes; i += bytesPerSample {
			prev, cur := rowData[i-bytesPerSample:i], rowData[i:i+bytesPerSample]
			switch bytesPerSample {
			case 1:
				cur[0] += prev[0]
			case 2:
				g.byteOrder.PutUint16(cur, g.byteOrder.Uint16(cur)+g.byteOrder.Uint16(prev))
			case 4:
				g.byteOrder.PutUint32(cur, g.byteOrder.Uint32(cur)+g.byteOrder.Uint32(prev))
			}
		}
	}
}

// decodeBlockData decodes blockData into blockSamples. Nodata samples become
// NaNs.
func (g *GeoTIFF) decodeBlockData(blockSamples []float64, blockData []byte) {
	bytesPerSample := g.bitsPerSample / 8
	for i := range len(blockData) / bytesPerSample {
		b := blockData[i*bytesPerSample : (i+1)*bytesPerSample]
		var sample float64
		switch g.sampleFormat<<8 | g.bitsPerSample {
		case sampleFormatUint<<8 | 8:
			sample = float64(b[0])
		case sampleFormatUint<<8 | 16:
			sample = float64(g.byteOrder.Uint16(b))
		case sampleFormatUint<<8 | 32:
			sample = float64(g.byteOrder.Uint32(b))
		case sampleFormatInt<<8 | 8:
			sample = float64(int8(b[0]))
		case sampleFormatInt<<8 | 16:
			sample = float64(int16(g.byteOrder.Uint16(b)))
		case sampleFormatInt<<8 | 32:
			sample = float64(int32(g.byteOrder.Uint32(b)))
		case sampleFormatFloat<<8 | 32:
			sample = float64(math.Float32frombits(g.byteOrder.Uint32(b)))
		case sampleFormatFloat<<8 | 64:
			sample = math.Float64frombits(g.byteOrder.Uint64(b))
		}
		if g.hasNoData && g.isNoData(sample) {
			sample = math.NaN()
		}
		blockSamples[i] = sample
	}
}

func (g *GeoTIFF) isNoData(sample float64) bool {
	if g.sampleFormat == sampleFormatFloat && g.bitsPerSample == 32 {
		return float32(sample) == float32(g.noData)
	}
	return sample == g.noData
}

// readByteOrder returns the byte order from a TIFF header.
func readByteOrder(r io.ReaderAt) (binary.ByteOrder, error) {
	header := make([]byte, 2)
	if _, err := r.ReadAt(header, 0); err != nil {
		return nil, err
	}
	switch string(header) {
	case "II":
		return binary.LittleEndian, nil
	case "MM":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("byte order %q: %w", header, errParse)
	}
}

func defaultInt(value, defaultValue int) int {
	if value == 0 {
		return defaultValue
	}
	return value
}

package geotiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/hhrutter/lzw"
	"github.com/klauspost/compress/zlib"
)

// Image is a decoded single-band raster. Data is row-major, Height*Width long.
type Image struct {
	Width  int
	Height int
	Data   []float64

	// Transform is the GDAL-ordered affine transform
	// (originX, pixelWidth, rowRotation, originY, colRotation, pixelHeight).
	Transform     [6]float64
	Georeferenced bool

	NoData *float64
	EPSG   int
}

type entry struct {
	tag   uint16
	dt    uint16
	count uint32
	raw   []byte
}

type decoder struct {
	r     io.ReaderAt
	order binary.ByteOrder
	tags  map[uint16]entry
}

// Decode reads the first image of a TIFF stream.
func Decode(r io.ReaderAt) (*Image, error) {
	d := &decoder{r: r, tags: make(map[uint16]entry)}
	if err := d.readIFD(); err != nil {
		return nil, err
	}
	return d.decode()
}

// DecodeBytes is a convenience wrapper for in-memory files.
func DecodeBytes(b []byte) (*Image, error) {
	return Decode(bytes.NewReader(b))
}

func (d *decoder) readIFD() error {
	var hdr [8]byte
	if _, err := d.r.ReadAt(hdr[:], 0); err != nil {
		return fmt.Errorf("%w: read header: %v", ErrNotTIFF, err)
	}
	switch string(hdr[:2]) {
	case "II":
		d.order = binary.LittleEndian
	case "MM":
		d.order = binary.BigEndian
	default:
		return ErrNotTIFF
	}
	switch v := d.order.Uint16(hdr[2:4]); v {
	case 42:
	case 43:
		return fmt.Errorf("%w: BigTIFF", ErrUnsupported)
	default:
		return fmt.Errorf("%w: version %d", ErrNotTIFF, v)
	}

	off := int64(d.order.Uint32(hdr[4:8]))
	var cnt [2]byte
	if _, err := d.r.ReadAt(cnt[:], off); err != nil {
		return fmt.Errorf("read IFD count: %w", err)
	}
	n := int(d.order.Uint16(cnt[:]))
	buf := make([]byte, 12*n)
	if _, err := d.r.ReadAt(buf, off+2); err != nil {
		return fmt.Errorf("read IFD entries: %w", err)
	}

	for i := range n {
		b := buf[12*i : 12*i+12]
		e := entry{
			tag:   d.order.Uint16(b[0:2]),
			dt:    d.order.Uint16(b[2:4]),
			count: d.order.Uint32(b[4:8]),
		}
		size := typeSize(e.dt) * int(e.count)
		if size == 0 {
			continue
		}
		if size <= 4 {
			e.raw = append([]byte(nil), b[8:8+size]...)
		} else {
			e.raw = make([]byte, size)
			if _, err := d.r.ReadAt(e.raw, int64(d.order.Uint32(b[8:12]))); err != nil {
				return fmt.Errorf("read tag %d: %w", e.tag, err)
			}
		}
		d.tags[e.tag] = e
	}
	return nil
}

// ints returns an integer-typed tag as a slice.
func (d *decoder) ints(tag uint16) []uint64 {
	e, ok := d.tags[tag]
	if !ok {
		return nil
	}
	out := make([]uint64, e.count)
	for i := range out {
		switch e.dt {
		case dtByte, dtUndefined:
			out[i] = uint64(e.raw[i])
		case dtShort:
			out[i] = uint64(d.order.Uint16(e.raw[2*i:]))
		case dtLong:
			out[i] = uint64(d.order.Uint32(e.raw[4*i:]))
		default:
			return nil
		}
	}
	return out
}

func (d *decoder) int(tag uint16, def uint64) uint64 {
	if v := d.ints(tag); len(v) > 0 {
		return v[0]
	}
	return def
}

func (d *decoder) doubles(tag uint16) []float64 {
	e, ok := d.tags[tag]
	if !ok || e.dt != dtDouble {
		return nil
	}
	out := make([]float64, e.count)
	for i := range out {
		out[i] = math.Float64frombits(d.order.Uint64(e.raw[8*i:]))
	}
	return out
}

func (d *decoder) ascii(tag uint16) (string, bool) {
	e, ok := d.tags[tag]
	if !ok || e.dt != dtASCII {
		return "", false
	}
	return strings.TrimRight(string(e.raw), "\x00 "), true
}

type layout struct {
	width, height   int
	bits            int
	format          int
	compression     int
	predictor       int
	chunkW, chunkH  int
	across          int
	offsets, counts []uint64
}

func (d *decoder) layout() (layout, error) {
	l := layout{
		width:       int(d.int(tagImageWidth, 0)),
		height:      int(d.int(tagImageLength, 0)),
		bits:        int(d.int(tagBitsPerSample, 1)),
		format:      int(d.int(tagSampleFormat, sampleUint)),
		compression: int(d.int(tagCompression, CompressionNone)),
		predictor:   int(d.int(tagPredictor, predictorNone)),
	}
	if l.width <= 0 || l.height <= 0 {
		return l, fmt.Errorf("%w: empty image %dx%d", ErrUnsupported, l.width, l.height)
	}
	if spp := d.int(tagSamplesPerPixel, 1); spp != 1 {
		return l, fmt.Errorf("%w: %d samples per pixel", ErrUnsupported, spp)
	}

	if _, tiled := d.tags[tagTileWidth]; tiled {
		l.chunkW = int(d.int(tagTileWidth, 0))
		l.chunkH = int(d.int(tagTileLength, 0))
		l.offsets = d.ints(tagTileOffsets)
		l.counts = d.ints(tagTileByteCounts)
	} else {
		l.chunkW = l.width
		l.chunkH = int(d.int(tagRowsPerStrip, uint64(l.height)))
		if l.chunkH > l.height {
			l.chunkH = l.height
		}
		l.offsets = d.ints(tagStripOffsets)
		l.counts = d.ints(tagStripByteCounts)
	}
	if l.chunkW <= 0 || l.chunkH <= 0 {
		return l, fmt.Errorf("%w: chunk size %dx%d", ErrUnsupported, l.chunkW, l.chunkH)
	}
	l.across = (l.width + l.chunkW - 1) / l.chunkW
	down := (l.height + l.chunkH - 1) / l.chunkH
	if len(l.offsets) < l.across*down || len(l.counts) < l.across*down {
		return l, fmt.Errorf("%w: %d chunk offsets for %d chunks", ErrUnsupported, len(l.offsets), l.across*down)
	}
	return l, nil
}

func (d *decoder) decode() (*Image, error) {
	l, err := d.layout()
	if err != nil {
		return nil, err
	}
	read, err := sampleReader(l.format, l.bits, d.order)
	if err != nil {
		return nil, err
	}
	bps := l.bits / 8

	img := &Image{Width: l.width, Height: l.height, Data: make([]float64, l.width*l.height)}
	for i := range l.across * ((l.height + l.chunkH - 1) / l.chunkH) {
		// Strips at the bottom edge are short; tiles are always full size.
		rows := l.chunkH
		row0 := (i / l.across) * l.chunkH
		col0 := (i % l.across) * l.chunkW
		if _, tiled := d.tags[tagTileWidth]; !tiled && row0+rows > l.height {
			rows = l.height - row0
		}

		chunk, err := d.chunk(l, int64(l.offsets[i]), int64(l.counts[i]), rows*l.chunkW*bps)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		order := d.order
		switch l.predictor {
		case predictorNone:
		case predictorHorizontal:
			undoHorizontal(chunk, l.chunkW, bps, d.order)
		case predictorFloat:
			undoFloat(chunk, l.chunkW, bps)
			order = binary.BigEndian
		default:
			return nil, fmt.Errorf("%w: predictor %d", ErrUnsupported, l.predictor)
		}
		if order != d.order {
			read, _ = sampleReader(l.format, l.bits, order)
		}

		for y := range rows {
			gy := row0 + y
			if gy >= l.height {
				break
			}
			for x := range l.chunkW {
				gx := col0 + x
				if gx >= l.width {
					break
				}
				img.Data[gy*l.width+gx] = read(chunk[(y*l.chunkW+x)*bps:])
			}
		}
	}

	d.georeference(img)
	if s, ok := d.ascii(tagGDALNoData); ok && s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			img.NoData = &v
		}
	}
	return img, nil
}

// chunk reads and decompresses one strip or tile into a buffer of want bytes.
func (d *decoder) chunk(l layout, off, n int64, want int) ([]byte, error) {
	src := io.NewSectionReader(d.r, off, n)
	var rc io.Reader
	switch l.compression {
	case CompressionNone:
		rc = src
	case CompressionLZW:
		lr := lzw.NewReader(src, true)
		defer lr.Close()
		rc = lr
	case CompressionDeflate, compressionDeflateP:
		zr, err := zlib.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		defer zr.Close()
		rc = zr
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupported, l.compression)
	}

	buf := make([]byte, want)
	if _, err := io.ReadFull(rc, buf); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf, nil
}

func (d *decoder) georeference(img *Image) {
	keys := d.ints(tagGeoKeyDirectory)
	pointRaster := false
	for i := 4; i+3 < len(keys); i += 4 {
		id, loc, val := keys[i], keys[i+1], keys[i+3]
		if loc != 0 {
			continue
		}
		switch id {
		case keyRasterType:
			pointRaster = val == rasterPixelIsPoint
		case keyGeographicType, keyProjectedCSType:
			if img.EPSG == 0 && val != 32767 {
				img.EPSG = int(val)
			}
		}
	}

	if m := d.doubles(tagModelTransformation); len(m) >= 8 {
		img.Transform = [6]float64{m[3], m[0], m[1], m[7], m[4], m[5]}
		img.Georeferenced = true
	} else {
		scale := d.doubles(tagModelPixelScale)
		tie := d.doubles(tagModelTiepoint)
		if len(scale) < 2 || len(tie) < 6 {
			return
		}
		img.Transform = [6]float64{
			tie[3] - tie[0]*scale[0], scale[0], 0,
			tie[4] + tie[1]*scale[1], 0, -scale[1],
		}
		img.Georeferenced = true
	}

	if pointRaster {
		img.Transform[0] -= img.Transform[1] / 2
		img.Transform[3] -= img.Transform[5] / 2
	}
}

func sampleReader(format, bits int, order binary.ByteOrder) (func([]byte) float64, error) {
	switch {
	case format == sampleUint && bits == 8:
		return func(b []byte) float64 { return float64(b[0]) }, nil
	case format == sampleInt && bits == 8:
		return func(b []byte) float64 { return float64(int8(b[0])) }, nil
	case format == sampleUint && bits == 16:
		return func(b []byte) float64 { return float64(order.Uint16(b)) }, nil
	case format == sampleInt && bits == 16:
		return func(b []byte) float64 { return float64(int16(order.Uint16(b))) }, nil
	case format == sampleUint && bits == 32:
		return func(b []byte) float64 { return float64(order.Uint32(b)) }, nil
	case format == sampleInt && bits == 32:
		return func(b []byte) float64 { return float64(int32(order.Uint32(b))) }, nil
	case format == sampleFloat && bits == 32:
		return func(b []byte) float64 { return float64(math.Float32frombits(order.Uint32(b))) }, nil
	case format == sampleFloat && bits == 64:
		return func(b []byte) float64 { return math.Float64frombits(order.Uint64(b)) }, nil
	}
	return nil, fmt.Errorf("%w: sample format %d with %d bits", ErrUnsupported, format, bits)
}

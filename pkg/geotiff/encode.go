package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/hhrutter/lzw"
)

var enc = binary.LittleEndian

// Options controls how Encode lays out the file. A nil *Options writes LZW
// strips of 64 rows.
type Options struct {
	Compression  int
	RowsPerStrip int
}

type ifdEntry struct {
	tag      uint16
	datatype uint16
	count    uint32
	data     []byte
}

type byTag []ifdEntry

func (d byTag) Len() int           { return len(d) }
func (d byTag) Less(i, j int) bool { return d[i].tag < d[j].tag }
func (d byTag) Swap(i, j int)      { d[i], d[j] = d[j], d[i] }

// Encode writes img as a single-band float32 GeoTIFF.
func Encode(w io.Writer, img *Image, opts *Options) error {
	if img.Width <= 0 || img.Height <= 0 || len(img.Data) != img.Width*img.Height {
		return fmt.Errorf("geotiff: invalid image %dx%d with %d samples", img.Width, img.Height, len(img.Data))
	}
	if !img.Georeferenced {
		return ErrNoGeoreference
	}
	o := Options{Compression: CompressionLZW, RowsPerStrip: 64}
	if opts != nil {
		o = *opts
		if o.Compression == 0 {
			o.Compression = CompressionLZW
		}
		if o.RowsPerStrip <= 0 {
			o.RowsPerStrip = img.Height
		}
	}
	if o.RowsPerStrip > img.Height {
		o.RowsPerStrip = img.Height
	}
	if o.Compression != CompressionNone && o.Compression != CompressionLZW {
		return fmt.Errorf("%w: write compression %d", ErrUnsupported, o.Compression)
	}

	strips, err := encodeStrips(img, o)
	if err != nil {
		return err
	}

	var entries []ifdEntry
	add := func(tag, dt uint16, count uint32, data []byte) {
		entries = append(entries, ifdEntry{tag, dt, count, data})
	}

	n := uint32(len(strips))
	counts := make([]uint32, n)
	for i, s := range strips {
		counts[i] = uint32(len(s))
	}
	add(tagImageWidth, dtLong, 1, enc32s(uint32(img.Width)))
	add(tagImageLength, dtLong, 1, enc32s(uint32(img.Height)))
	add(tagBitsPerSample, dtShort, 1, enc16s(32))
	add(tagCompression, dtShort, 1, enc16s(uint16(o.Compression)))
	add(tagPhotometric, dtShort, 1, enc16s(1))
	add(tagStripOffsets, dtLong, n, make([]byte, 4*n))
	add(tagSamplesPerPixel, dtShort, 1, enc16s(1))
	add(tagRowsPerStrip, dtLong, 1, enc32s(uint32(o.RowsPerStrip)))
	add(tagStripByteCounts, dtLong, n, enc32s(counts...))
	add(tagPlanarConfig, dtShort, 1, enc16s(1))
	add(tagSampleFormat, dtShort, 1, enc16s(sampleFloat))

	t := img.Transform
	if t[2] == 0 && t[4] == 0 {
		add(tagModelPixelScale, dtDouble, 3, encDoubles(t[1], math.Abs(t[5]), 0))
		add(tagModelTiepoint, dtDouble, 6, encDoubles(0, 0, 0, t[0], t[3], 0))
	} else {
		add(tagModelTransformation, dtDouble, 16, encDoubles(
			t[1], t[2], 0, t[0],
			t[4], t[5], 0, t[3],
			0, 0, 0, 0,
			0, 0, 0, 1,
		))
	}
	keys := geoKeys(img.EPSG)
	add(tagGeoKeyDirectory, dtShort, uint32(len(keys)), enc16s(keys...))
	if img.NoData != nil {
		b := append([]byte(formatNoData(*img.NoData)), 0)
		add(tagGDALNoData, dtASCII, uint32(len(b)), b)
	}
	sort.Sort(byTag(entries))

	// Header, then the IFD at offset 8, then out-of-line values, then strips.
	ifdSize := 2 + 12*len(entries) + 4
	valueOffset := 8 + ifdSize
	large := 0
	for _, e := range entries {
		if len(e.data) > 4 {
			large += len(e.data)
		}
	}
	pos := uint32(valueOffset + large)
	offsets := make([]uint32, n)
	for i, s := range strips {
		offsets[i] = pos
		pos += uint32(len(s))
	}
	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			entries[i].data = enc32s(offsets...)
		}
	}

	var values bytes.Buffer
	fields := make([][4]byte, len(entries))
	for i, e := range entries {
		if len(e.data) <= 4 {
			copy(fields[i][:], e.data)
			continue
		}
		enc.PutUint32(fields[i][:], uint32(valueOffset+values.Len()))
		values.Write(e.data)
	}

	var head bytes.Buffer
	head.Write([]byte{'I', 'I', 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00})
	_ = binary.Write(&head, enc, uint16(len(entries)))
	for i, e := range entries {
		_ = binary.Write(&head, enc, e.tag)
		_ = binary.Write(&head, enc, e.datatype)
		_ = binary.Write(&head, enc, e.count)
		head.Write(fields[i][:])
	}
	_ = binary.Write(&head, enc, uint32(0))

	if _, err := head.WriteTo(w); err != nil {
		return err
	}
	if _, err := values.WriteTo(w); err != nil {
		return err
	}
	for _, s := range strips {
		if _, err := w.Write(s); err != nil {
			return err
		}
	}
	return nil
}

func encodeStrips(img *Image, o Options) ([][]byte, error) {
	var strips [][]byte
	for row0 := 0; row0 < img.Height; row0 += o.RowsPerStrip {
		rows := min(o.RowsPerStrip, img.Height-row0)
		raw := make([]byte, 4*rows*img.Width)
		for i, v := range img.Data[row0*img.Width : (row0+rows)*img.Width] {
			enc.PutUint32(raw[4*i:], math.Float32bits(float32(v)))
		}
		if o.Compression == CompressionNone {
			strips = append(strips, raw)
			continue
		}
		var buf bytes.Buffer
		lw := lzw.NewWriter(&buf, true)
		if _, err := lw.Write(raw); err != nil {
			return nil, fmt.Errorf("lzw strip at row %d: %w", row0, err)
		}
		if err := lw.Close(); err != nil {
			return nil, fmt.Errorf("lzw strip at row %d: %w", row0, err)
		}
		strips = append(strips, buf.Bytes())
	}
	return strips, nil
}

func geoKeys(epsg int) []uint16 {
	if epsg == 0 {
		epsg = 4326
	}
	if epsg >= 4000 && epsg < 5000 {
		return []uint16{
			1, 1, 0, 3,
			keyModelType, 0, 1, modelTypeGeographic,
			keyRasterType, 0, 1, rasterPixelIsArea,
			keyGeographicType, 0, 1, uint16(epsg),
		}
	}
	return []uint16{
		1, 1, 0, 3,
		keyModelType, 0, 1, modelTypeProjected,
		keyRasterType, 0, 1, rasterPixelIsArea,
		keyProjectedCSType, 0, 1, uint16(epsg),
	}
}

func formatNoData(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func enc16s(vs ...uint16) []byte {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		enc.PutUint16(b[2*i:], v)
	}
	return b
}

func enc32s(vs ...uint32) []byte {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		enc.PutUint32(b[4*i:], v)
	}
	return b
}

func encDoubles(vs ...float64) []byte {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		enc.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return b
}

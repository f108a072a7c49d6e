// Package geotiff reads and writes single-band GeoTIFF rasters without cgo.
//
// Decoding covers what public elevation and SAR products ship with: classic
// (non-Big) TIFF in either byte order, strips or tiles, no/LZW/Deflate
// compression, horizontal and floating-point predictors, and 8/16/32/64-bit
// integer or float samples. Only the first IFD (full resolution) is read;
// overviews are ignored.
//
// Encoding always writes little-endian float32 strips with optional LZW and the
// geo tags needed by GDAL-based readers: ModelPixelScale, ModelTiepoint,
// GeoKeyDirectory and GDAL_NODATA.
package geotiff

import "errors"

const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndefined = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
)

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPredictor       = 317
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339

	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGeoDoubleParams     = 34736
	tagGeoASCIIParams      = 34737
	tagGDALNoData          = 42113
)

// Compression schemes.
const (
	CompressionNone     = 1
	CompressionLZW      = 5
	CompressionDeflate  = 8
	compressionDeflateP = 32946
)

const (
	predictorNone       = 1
	predictorHorizontal = 2
	predictorFloat      = 3
)

const (
	sampleUint  = 1
	sampleInt   = 2
	sampleFloat = 3
)

// GeoKey identifiers used when reading and writing the key directory.
const (
	keyModelType       = 1024
	keyRasterType      = 1025
	keyGeographicType  = 2048
	keyProjectedCSType = 3072

	modelTypeProjected  = 1
	modelTypeGeographic = 2
	rasterPixelIsArea   = 1
	rasterPixelIsPoint  = 2
)

var (
	// ErrNotTIFF is returned when the header does not carry a TIFF signature.
	ErrNotTIFF = errors.New("geotiff: not a TIFF file")
	// ErrUnsupported is returned for valid TIFF layouts this package does not decode.
	ErrUnsupported = errors.New("geotiff: unsupported layout")
	// ErrNoGeoreference is returned by Encode when the image has no transform.
	ErrNoGeoreference = errors.New("geotiff: missing georeference")
)

func typeSize(dt uint16) int {
	switch dt {
	case dtByte, dtASCII, dtSByte, dtUndefined:
		return 1
	case dtShort, dtSShort:
		return 2
	case dtLong, dtSLong, dtFloat:
		return 4
	case dtRational, dtSRational, dtDouble:
		return 8
	default:
		return 0
	}
}

package geotiff

import "encoding/binary"

// undoHorizontal reverses TIFF predictor 2 in place. Each row of width samples
// holds differences from the previous sample.
func undoHorizontal(buf []byte, width, bps int, order binary.ByteOrder) {
	stride := width * bps
	for row := 0; row+stride <= len(buf); row += stride {
		r := buf[row : row+stride]
		switch bps {
		case 1:
			for x := 1; x < width; x++ {
				r[x] += r[x-1]
			}
		case 2:
			for x := 1; x < width; x++ {
				order.PutUint16(r[2*x:], order.Uint16(r[2*x:])+order.Uint16(r[2*x-2:]))
			}
		case 4:
			for x := 1; x < width; x++ {
				order.PutUint32(r[4*x:], order.Uint32(r[4*x:])+order.Uint32(r[4*x-4:]))
			}
		case 8:
			for x := 1; x < width; x++ {
				order.PutUint64(r[8*x:], order.Uint64(r[8*x:])+order.Uint64(r[8*x-8:]))
			}
		}
	}
}

// undoFloat reverses TIFF predictor 3 in place. Rows are byte-differenced and
// byte-planar with the most significant byte plane first, so the result is
// big-endian regardless of the file's byte order.
func undoFloat(buf []byte, width, bps int) {
	stride := width * bps
	tmp := make([]byte, stride)
	for row := 0; row+stride <= len(buf); row += stride {
		r := buf[row : row+stride]
		for i := 1; i < stride; i++ {
			r[i] += r[i-1]
		}
		for x := range width {
			for k := range bps {
				tmp[x*bps+k] = r[k*width+x]
			}
		}
		copy(r, tmp)
	}
}

// Package fits reads and writes the minimal subset of the FITS image
// container the pipeline needs: a single primary HDU holding a 2D
// floating-point image plus key/value header cards. Background tiles are
// read through it and final synthetic images are persisted through it.
package fits

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"galsynth/pkg/background"
)

const (
	blockSize  = 2880
	recordSize = 80
)

// ErrUnsupportedBitpix reports a pixel format this reader does not decode.
var ErrUnsupportedBitpix = errors.New("fits: unsupported BITPIX")

// Image is a decoded primary HDU.
type Image struct {
	Data    []float64
	W, H    int
	Headers map[string]string
}

// GetDouble parses a header value as a float.
func (img *Image) GetDouble(key string) (float64, bool) {
	v, ok := img.Headers[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return d, true
}

// GetString returns a header value, or "" when absent.
func (img *Image) GetString(key string) string {
	return img.Headers[strings.ToUpper(key)]
}

// ReadImage decodes the primary HDU of a FITS file.
func ReadImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fits: opening %s: %w", path, err)
	}
	defer f.Close()
	img, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("fits: reading %s: %w", path, err)
	}
	return img, nil
}

func decode(r io.Reader) (*Image, error) {
	var bitpix, naxis, width, height int
	bzero, bscale := 0.0, 1.0
	headers := make(map[string]string)

	record := make([]byte, recordSize)
	headerDone := false
	for !headerDone {
		for i := 0; i < blockSize/recordSize; i++ {
			if _, err := io.ReadFull(r, record); err != nil {
				return nil, fmt.Errorf("reading header record: %w", err)
			}
			card := string(record)
			keyword := strings.TrimSpace(card[:8])
			if keyword == "END" {
				headerDone = true
				if remaining := blockSize/recordSize - 1 - i; remaining > 0 {
					if _, err := io.ReadFull(r, make([]byte, remaining*recordSize)); err != nil {
						return nil, fmt.Errorf("skipping header padding: %w", err)
					}
				}
				break
			}
			if len(card) <= 10 || card[8] != '=' || card[9] != ' ' {
				continue
			}
			raw := strings.TrimSpace(strings.SplitN(card[10:], "/", 2)[0])
			if keyword == "" || raw == "" {
				continue
			}
			headers[strings.ToUpper(keyword)] = unquote(raw)
			switch keyword {
			case "BITPIX":
				bitpix, _ = strconv.Atoi(raw)
			case "NAXIS":
				naxis, _ = strconv.Atoi(raw)
			case "NAXIS1":
				width, _ = strconv.Atoi(raw)
			case "NAXIS2":
				height, _ = strconv.Atoi(raw)
			case "BZERO":
				bzero, _ = strconv.ParseFloat(raw, 64)
			case "BSCALE":
				bscale, _ = strconv.ParseFloat(raw, 64)
			}
		}
	}

	if naxis < 2 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image geometry: NAXIS=%d NAXIS1=%d NAXIS2=%d", naxis, width, height)
	}

	n := width * height
	data := make([]float64, n)
	bytesPer := abs(bitpix) / 8
	raw := make([]byte, n*bytesPer)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("reading pixel data: %w", err)
	}
	switch bitpix {
	case 8:
		for i := 0; i < n; i++ {
			data[i] = float64(raw[i])*bscale + bzero
		}
	case 16:
		for i := 0; i < n; i++ {
			data[i] = float64(int16(binary.BigEndian.Uint16(raw[i*2:])))*bscale + bzero
		}
	case 32:
		for i := 0; i < n; i++ {
			data[i] = float64(int32(binary.BigEndian.Uint32(raw[i*4:])))*bscale + bzero
		}
	case -32:
		for i := 0; i < n; i++ {
			data[i] = float64(math.Float32frombits(binary.BigEndian.Uint32(raw[i*4:])))*bscale + bzero
		}
	case -64:
		for i := 0; i < n; i++ {
			data[i] = math.Float64frombits(binary.BigEndian.Uint64(raw[i*8:]))*bscale + bzero
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitpix, bitpix)
	}

	return &Image{Data: data, W: width, H: height, Headers: headers}, nil
}

// PixelScaleArcsec derives the tile pixel scale from the WCS CD matrix
// cards (given in degrees), falling back across CD1_2/CD2_2 the way survey
// mosaics are commonly keyed.
func (img *Image) PixelScaleArcsec() (float64, bool) {
	cd11, ok := img.GetDouble("CD1_1")
	if !ok {
		return 0, false
	}
	cd12, ok := img.GetDouble("CD1_2")
	if !ok {
		cd12, _ = img.GetDouble("CD2_2")
	}
	return 3600 * math.Hypot(cd11, cd12), true
}

// LoadTile reads a background mosaic and its pixel scale. The photometric
// zero point is supplied by the caller's band table.
func LoadTile(path string, zeroPoint float64) (*background.Tile, error) {
	img, err := ReadImage(path)
	if err != nil {
		return nil, err
	}
	scale, ok := img.PixelScaleArcsec()
	if !ok || scale <= 0 {
		return nil, fmt.Errorf("fits: %s carries no usable CD matrix for its pixel scale", path)
	}
	return &background.Tile{
		Data:             img.Data,
		W:                img.W,
		H:                img.H,
		PixelScaleArcsec: scale,
		ZeroPoint:        zeroPoint,
	}, nil
}

// Card is one output header entry. Value may be a string, bool, int,
// float64 or uint64.
type Card struct {
	Key     string
	Value   interface{}
	Comment string
}

// WriteImage persists a 2D float image as a BITPIX=-32 primary HDU with the
// given extra header cards.
func WriteImage(path string, data []float64, w, h int, cards []Card) error {
	if len(data) != w*h {
		return fmt.Errorf("fits: %d samples do not fill a %dx%d image", len(data), w, h)
	}

	var header strings.Builder
	writeCard(&header, Card{"SIMPLE", true, "conforms to FITS standard"})
	writeCard(&header, Card{"BITPIX", -32, "IEEE single precision"})
	writeCard(&header, Card{"NAXIS", 2, ""})
	writeCard(&header, Card{"NAXIS1", w, ""})
	writeCard(&header, Card{"NAXIS2", h, ""})
	for _, c := range cards {
		writeCard(&header, c)
	}
	header.WriteString(fmt.Sprintf("%-80s", "END"))
	padTo := (header.Len() + blockSize - 1) / blockSize * blockSize
	header.WriteString(strings.Repeat(" ", padTo-header.Len()))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fits: creating %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(header.String()); err != nil {
		return fmt.Errorf("fits: writing header: %w", err)
	}

	buf := make([]byte, len(data)*4)
	for i, v := range data {
		binary.BigEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
	}
	if pad := (len(buf) + blockSize - 1) / blockSize * blockSize; pad > len(buf) {
		buf = append(buf, make([]byte, pad-len(buf))...)
	}
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("fits: writing pixel data: %w", err)
	}
	return nil
}

func writeCard(b *strings.Builder, c Card) {
	var value string
	switch v := c.Value.(type) {
	case string:
		value = fmt.Sprintf("'%-8s'", v)
	case bool:
		if v {
			value = "T"
		} else {
			value = "F"
		}
	case int:
		value = strconv.Itoa(v)
	case uint64:
		value = strconv.FormatUint(v, 10)
	case float64:
		value = strconv.FormatFloat(v, 'G', 14, 64)
	default:
		value = fmt.Sprint(v)
	}
	card := fmt.Sprintf("%-8s= %20s", c.Key, value)
	if c.Comment != "" {
		card += " / " + c.Comment
	}
	if len(card) > recordSize {
		card = card[:recordSize]
	}
	b.WriteString(fmt.Sprintf("%-80s", card))
}

func unquote(raw string) string {
	if raw == "T" {
		return "True"
	}
	if raw == "F" {
		return "False"
	}
	if strings.HasPrefix(raw, "'") {
		if end := strings.LastIndex(raw, "'"); end > 0 {
			return strings.TrimRight(raw[1:end], " ")
		}
		return strings.Trim(raw, "' ")
	}
	return raw
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

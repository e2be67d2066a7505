package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"sort"

	lpdf "github.com/ledongthuc/pdf"
)

// Page is the native content of one PDF page. Number is 1-based.
type Page struct {
	Number int
	Text   string
	Image  *Image
}

// Image is the first decodable raster found on a page, re-encoded for OCR.
type Image struct {
	Data     []byte
	MimeType string
}

// Reader extracts per-page text and the first embedded image.
type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

// ReadPages parses the whole document. A page whose text cannot be decoded
// yields empty text rather than failing the document.
func (r *Reader) ReadPages(data []byte) (pages []Page, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("malformed pdf: %v", rec)
		}
	}()

	doc, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	n := doc.NumPage()
	pages = make([]Page, 0, n)
	for i := 1; i <= n; i++ {
		p := doc.Page(i)
		if p.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}
		pages = append(pages, Page{
			Number: i,
			Text:   pageText(p, i),
			Image:  firstImage(p),
		})
	}
	return pages, nil
}

func pageText(p lpdf.Page, number int) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("PDF: page %d text decode failed: %v", number, rec)
			text = ""
		}
	}()
	text, err := p.GetPlainText(nil)
	if err != nil {
		log.Printf("PDF: page %d text decode failed: %v", number, err)
		return ""
	}
	return text
}

// firstImage only handles unfiltered or Flate-compressed 8-bit DeviceRGB and
// DeviceGray images. Anything else (DCT, JBIG2, indexed colour) is skipped.
func firstImage(p lpdf.Page) *Image {
	xobjects := p.Resources().Key("XObject")
	if xobjects.Kind() != lpdf.Dict {
		return nil
	}
	keys := xobjects.Keys()
	sort.Strings(keys)
	for _, k := range keys {
		if img := decodeImage(xobjects.Key(k)); img != nil {
			return img
		}
	}
	return nil
}

func decodeImage(v lpdf.Value) (img *Image) {
	defer func() {
		if rec := recover(); rec != nil {
			img = nil
		}
	}()

	if v.Kind() != lpdf.Stream || v.Key("Subtype").Name() != "Image" {
		return nil
	}
	if !supportedFilter(v.Key("Filter")) {
		return nil
	}
	if v.Key("BitsPerComponent").Int64() != 8 {
		return nil
	}
	width := int(v.Key("Width").Int64())
	height := int(v.Key("Height").Int64())
	if width <= 0 || height <= 0 {
		return nil
	}

	var channels int
	switch v.Key("ColorSpace").Name() {
	case "DeviceRGB":
		channels = 3
	case "DeviceGray":
		channels = 1
	default:
		return nil
	}

	rc := v.Reader()
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil || len(raw) < width*height*channels {
		return nil
	}

	encoded, err := encodePNG(raw, width, height, channels)
	if err != nil {
		return nil
	}
	return &Image{Data: encoded, MimeType: "image/png"}
}

func supportedFilter(f lpdf.Value) bool {
	switch f.Kind() {
	case lpdf.Null:
		return true
	case lpdf.Name:
		return f.Name() == "FlateDecode"
	case lpdf.Array:
		if f.Len() == 0 {
			return true
		}
		if f.Len() != 1 {
			return false
		}
		return f.Index(0).Name() == "FlateDecode"
	}
	return false
}

func encodePNG(raw []byte, width, height, channels int) ([]byte, error) {
	var m image.Image
	switch channels {
	case 1:
		g := image.NewGray(image.Rect(0, 0, width, height))
		copy(g.Pix, raw[:width*height])
		m = g
	case 3:
		rgba := image.NewRGBA(image.Rect(0, 0, width, height))
		for i := 0; i < width*height; i++ {
			rgba.SetRGBA(i%width, i/width, color.RGBA{R: raw[3*i], G: raw[3*i+1], B: raw[3*i+2], A: 0xff})
		}
		m = rgba
	default:
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

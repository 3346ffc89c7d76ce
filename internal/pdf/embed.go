package pdf

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// imageObject is a page image prepared for embedding as a PDF XObject.
type imageObject struct {
	width      int
	height     int
	colorSpace string
	filter     string
	data       []byte
}

// embedStrategy turns a raw page buffer into an embeddable object.
// Strategies are tried in order; only when every one fails does the
// page, and with it the whole assembly, fail.
type embedStrategy struct {
	name  string
	embed func(data []byte) (*imageObject, error)
}

var embedStrategies = []embedStrategy{
	{name: "jpeg", embed: embedJPEG},
	{name: "flate", embed: embedFlate},
}

// embedJPEG embeds JPEG data verbatim under a DCTDecode filter. The
// buffer must actually be a baseline JPEG the PDF image model accepts.
func embedJPEG(data []byte) (*imageObject, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read image header: %w", err)
	}
	if format != "jpeg" {
		return nil, fmt.Errorf("buffer is %s, not jpeg", format)
	}

	var colorSpace string
	switch cfg.ColorModel {
	case color.YCbCrModel, color.RGBAModel, color.NRGBAModel:
		colorSpace = "/DeviceRGB"
	case color.GrayModel:
		colorSpace = "/DeviceGray"
	default:
		return nil, fmt.Errorf("unsupported jpeg color model")
	}

	return &imageObject{
		width:      cfg.Width,
		height:     cfg.Height,
		colorSpace: colorSpace,
		filter:     "/DCTDecode",
		data:       data,
	}, nil
}

// embedFlate re-encodes the image as raw RGB samples under FlateDecode.
// Slower and larger than DCT passthrough but accepts anything the image
// decoders can read.
func embedFlate(data []byte) (*imageObject, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty image")
	}

	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(nrgba, nrgba.Bounds(), src, bounds.Min, draw.Src)

	rgb := make([]byte, 0, w*h*3)
	for i := 0; i < len(nrgba.Pix); i += 4 {
		rgb = append(rgb, nrgba.Pix[i], nrgba.Pix[i+1], nrgba.Pix[i+2])
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(rgb); err != nil {
		return nil, fmt.Errorf("compress samples: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress samples: %w", err)
	}

	return &imageObject{
		width:      w,
		height:     h,
		colorSpace: "/DeviceRGB",
		filter:     "/FlateDecode",
		data:       buf.Bytes(),
	}, nil
}

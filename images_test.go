package aidetect

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
)

// rampImage has a horizontal red ramp and a vertical green ramp over constant
// blue. It trips no artifact or color heuristic.
func rampImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 256 / w),
				G: uint8(y * 128 / h),
				B: 64,
				A: 255,
			})
		}
	}
	return img
}

// waveImage is a low-frequency photo-like pattern.
func waveImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(128 + 60*math.Sin(float64(x)/300)),
				G: uint8(128 + 40*math.Sin(float64(y)/250)),
				B: uint8(100 + 30*math.Sin(float64(x+y)/400)),
				A: 255,
			})
		}
	}
	return img
}

// checkerImage alternates black and white pixels: extreme edges, identical
// channel spread and a very wide one.
func checkerImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			c := color.RGBA{A: 255}
			if (x+y)%2 == 0 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func flatImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic("encodePNG: " + err.Error())
	}
	return buf.Bytes()
}

func encodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		panic("encodeJPEG: " + err.Error())
	}
	return buf.Bytes()
}

// pngChunk builds a complete PNG chunk with a valid CRC.
func pngChunk(typ string, body []byte) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(body)))
	buf.WriteString(typ)
	buf.Write(body)
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(body)
	_ = binary.Write(&buf, binary.BigEndian, crc.Sum32())
	return buf.Bytes()
}

// withPNGChunk inserts chunk right after IHDR (signature 8 + IHDR 25 bytes).
func withPNGChunk(pngData, chunk []byte) []byte {
	const afterIHDR = 33
	out := make([]byte, 0, len(pngData)+len(chunk))
	out = append(out, pngData[:afterIHDR]...)
	out = append(out, chunk...)
	return append(out, pngData[afterIHDR:]...)
}

// withPNGText adds a tEXt chunk keyword=value.
func withPNGText(pngData []byte, keyword, value string) []byte {
	return withPNGChunk(pngData, pngChunk("tEXt", []byte(keyword+"\x00"+value)))
}

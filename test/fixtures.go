package test

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
)

type Data struct {
	FileName string
	MimeType string
	Width    int
	Height   int
	Contents []byte
}

type DataTable map[string]Data

// gradient returns a w*h image with a horizontal and vertical color gradient,
// so resizing has something to work with.
func gradient(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

// PNG returns a generated png image of the given size.
func PNG(w, h int) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(w, h)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEG returns a generated jpeg image of the given size.
func JPEG(w, h int) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(w, h), nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// GetTestDataTable returns generated test images.
// a is a landscape png.
// b is a portrait jpeg.
// c is a png that's already smaller than the default thumbnail size.
func GetTestDataTable() DataTable {
	testDataT := make(DataTable, 3)

	for _, item := range []struct {
		name     string
		fileName string
		mimeType string
		width    int
		height   int
		encode   func(w, h int) []byte
	}{
		{name: "a", fileName: "logo.png", mimeType: "image/png", width: 200, height: 100, encode: PNG},
		{name: "b", fileName: "photo.jpg", mimeType: "image/jpeg", width: 90, height: 160, encode: JPEG},
		{name: "c", fileName: "icon.png", mimeType: "image/png", width: 16, height: 16, encode: PNG},
	} {
		testDataT[item.name] = Data{
			FileName: item.fileName,
			MimeType: item.mimeType,
			Width:    item.width,
			Height:   item.height,
			Contents: item.encode(item.width, item.height),
		}
	}

	return testDataT
}

// MustGet returns the test data with the given name, or panics.
func MustGet(name string) Data {
	td, ok := GetTestDataTable()[name]
	if !ok {
		panic(fmt.Sprintf("testData[%v] doesn't exist", name))
	}
	return td
}

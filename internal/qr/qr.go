// Package qr renders UPI deep links as QR code images for chat delivery.
package qr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/skip2/go-qrcode"
)

const (
	// PlainFilename names the monochrome variant when sent as an attachment.
	PlainFilename = "upi_qr.png"
	// StyledFilename names the styled card variant.
	StyledFilename = "styled_upi_qr.png"

	plainSize = 600

	cardWidth  = 700
	cardHeight = 900
	panelX     = 30
	panelY     = 40
	panelW     = 640
	panelH     = 820
	qrSize     = 500
	qrX        = 100
	qrY        = 200
	titleX     = 100
	titleY     = 80
	amountX    = 100
	amountY    = 750
)

var (
	cardBackground = color.RGBA{R: 0xf4, G: 0xf6, B: 0xfb, A: 0xff}
	qrForeground   = color.RGBA{R: 0x11, G: 0x11, B: 0x11, A: 0xff}
	amountGreen    = color.RGBA{R: 0x2e, G: 0x7d, B: 0x32, A: 0xff}
)

// Attachment is an in-memory PNG ready to be uploaded as a chat photo.
type Attachment struct {
	Filename string
	Data     []byte
}

// Render produces the plain monochrome QR variant at medium error correction.
func Render(link string) (Attachment, error) {
	if link == "" {
		return Attachment{}, errors.New("link is required")
	}

	data, err := qrcode.Encode(link, qrcode.Medium, plainSize)
	if err != nil {
		return Attachment{}, fmt.Errorf("encode qr: %w", err)
	}

	return Attachment{Filename: PlainFilename, Data: data}, nil
}

// RenderStyled produces the styled card variant: the QR at highest error
// correction on a colored card with a white inset panel, overlaid with the
// payee name and the amount.
func RenderStyled(link, payee, amount string) (Attachment, error) {
	if link == "" {
		return Attachment{}, errors.New("link is required")
	}

	code, err := qrcode.New(link, qrcode.Highest)
	if err != nil {
		return Attachment{}, fmt.Errorf("encode qr: %w", err)
	}
	code.ForegroundColor = qrForeground
	code.BackgroundColor = color.White

	qrImage := code.Image(qrSize)

	card := image.NewRGBA(image.Rect(0, 0, cardWidth, cardHeight))
	draw.Draw(card, card.Bounds(), image.NewUniform(cardBackground), image.Point{}, draw.Src)

	panel := image.Rect(panelX, panelY, panelX+panelW, panelY+panelH)
	draw.Draw(card, panel, image.NewUniform(color.White), image.Point{}, draw.Src)

	qrRect := image.Rect(qrX, qrY, qrX+qrSize, qrY+qrSize)
	draw.Draw(card, qrRect, qrImage, qrImage.Bounds().Min, draw.Src)

	faces := loadFaces()
	drawText(card, payee, titleX, titleY, faces.title, color.Black)
	drawText(card, "INR "+amount, amountX, amountY, faces.label, amountGreen)

	var buf bytes.Buffer
	if err := png.Encode(&buf, card); err != nil {
		return Attachment{}, fmt.Errorf("write png: %w", err)
	}

	return Attachment{Filename: StyledFilename, Data: buf.Bytes()}, nil
}

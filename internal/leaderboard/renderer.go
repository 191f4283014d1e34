package leaderboard

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"time"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	imageWidth   = 640
	headerHeight = 44
	rowHeight    = 52
	padding      = 16
	avatarSize   = 40
	rankWidth    = 36
	nameWidth    = 200
	timeWidth    = 72
	barHeight    = 14
	maxNameRunes = 26
)

var (
	colorBackground = color.RGBA{R: 0x2b, G: 0x2d, B: 0x31, A: 0xff}
	colorRowAlt     = color.RGBA{R: 0x31, G: 0x33, B: 0x38, A: 0xff}
	colorText       = color.RGBA{R: 0xf2, G: 0xf3, B: 0xf5, A: 0xff}
	colorSubtle     = color.RGBA{R: 0xb5, G: 0xba, B: 0xc1, A: 0xff}
	colorBarTrack   = color.RGBA{R: 0x40, G: 0x42, B: 0x49, A: 0xff}
	colorBar        = color.RGBA{R: 0x58, G: 0x65, B: 0xf2, A: 0xff}
	colorAvatarNone = color.RGBA{R: 0x4e, G: 0x50, B: 0x58, A: 0xff}
	colorPodium     = []color.RGBA{
		{R: 0xf1, G: 0xc4, B: 0x0f, A: 0xff},
		{R: 0xbd, G: 0xc3, B: 0xc7, A: 0xff},
		{R: 0xcd, G: 0x7f, B: 0x32, A: 0xff},
	}
)

// RenderPNG draws rows as a ranked list with avatars, names, totals and bars
// scaled to the longest total.
func RenderPNG(rows []Row) ([]byte, error) {
	height := headerHeight + rowHeight*len(rows) + padding
	img := image.NewRGBA(image.Rect(0, 0, imageWidth, height))
	fill(img, img.Bounds(), colorBackground)

	drawText(img, padding, 28, "Voice Time Leaderboard", colorText)

	var longest time.Duration
	for _, r := range rows {
		longest = max(longest, r.Total)
	}

	for i, r := range rows {
		top := headerHeight + i*rowHeight
		if i%2 == 1 {
			fill(img, image.Rect(0, top, imageWidth, top+rowHeight), colorRowAlt)
		}
		baseline := top + rowHeight/2 + 5

		rankColor := colorText
		if r.Rank >= 1 && r.Rank <= len(colorPodium) {
			rankColor = colorPodium[r.Rank-1]
		}
		drawText(img, padding, baseline, fmt.Sprintf("#%d", r.Rank), rankColor)

		avatarX := padding + rankWidth
		avatarY := top + (rowHeight-avatarSize)/2
		drawAvatar(img, image.Rect(avatarX, avatarY, avatarX+avatarSize, avatarY+avatarSize), r.Avatar)

		nameX := avatarX + avatarSize + 12
		drawText(img, nameX, baseline, truncateRunes(r.DisplayName, maxNameRunes), colorText)

		barX := nameX + nameWidth
		barW := imageWidth - padding - timeWidth - barX - 8
		barY := top + (rowHeight-barHeight)/2
		fill(img, image.Rect(barX, barY, barX+barW, barY+barHeight), colorBarTrack)
		if w := barFill(barW, r.Total, longest); w > 0 {
			fill(img, image.Rect(barX, barY, barX+w, barY+barHeight), colorBar)
		}

		drawText(img, imageWidth-padding-timeWidth+8, baseline, formatElapsedHMS(r.Total), colorSubtle)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode leaderboard png: %w", err)
	}
	return buf.Bytes(), nil
}

// barFill scales total against longest in seconds; nanosecond products
// overflow int64 for totals past about a year.
func barFill(barW int, total, longest time.Duration) int {
	if longest <= 0 || total <= 0 {
		return 0
	}
	w := int(float64(barW) * total.Seconds() / longest.Seconds())
	return min(w, barW)
}

func fill(dst *image.RGBA, r image.Rectangle, c color.Color) {
	xdraw.Draw(dst, r, image.NewUniform(c), image.Point{}, xdraw.Src)
}

func drawAvatar(dst *image.RGBA, r image.Rectangle, avatar image.Image) {
	if avatar == nil {
		fill(dst, r, colorAvatarNone)
		return
	}
	xdraw.CatmullRom.Scale(dst, r, avatar, avatar.Bounds(), xdraw.Over, nil)
}

func drawText(dst *image.RGBA, x, y int, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

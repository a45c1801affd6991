package webmonitor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/session"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/threat"
)

const (
	badgeWidth  = 220
	badgeHeight = 48
)

var (
	colorSafe    = color.RGBA{R: 0x2e, G: 0x7d, B: 0x32, A: 0xff}
	colorWarning = color.RGBA{R: 0xef, G: 0x6c, B: 0x00, A: 0xff}
	colorDanger  = color.RGBA{R: 0xc6, G: 0x28, B: 0x28, A: 0xff}
	colorIdle    = color.RGBA{R: 0x61, G: 0x61, B: 0x61, A: 0xff}
)

func badgeColor(s session.State) color.RGBA {
	if s.Phase != session.PhaseActive {
		return colorIdle
	}
	switch s.ThreatLevel {
	case threat.Danger:
		return colorDanger
	case threat.Warning:
		return colorWarning
	default:
		return colorSafe
	}
}

func badgeLines(s session.State) (string, string) {
	if s.Phase != session.PhaseActive {
		return "SYSTEM " + strings.ToUpper(s.Phase.String()), "monitoring off"
	}
	title := strings.ToUpper(s.ThreatLevel.String())
	if !s.BackendConnected {
		title += " (OFFLINE)"
	}
	return title, fmt.Sprintf("crowd %d  poll #%d", s.CrowdCount, s.PollCount)
}

// renderBadge draws a small PNG status badge for s.
func renderBadge(s session.State) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, badgeWidth, badgeHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(badgeColor(s)), image.Point{}, draw.Src)

	title, detail := badgeLines(s)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: basicfont.Face7x13,
	}
	d.Dot = fixed.P(10, 20)
	d.DrawString(title)
	d.Dot = fixed.P(10, 38)
	d.DrawString(detail)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

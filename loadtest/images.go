package loadtest

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	textMargin  = 20
	lineSpacing = 30
	randomLines = 10
	alphabet    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type ImageSpec struct {
	Width   int
	Height  int
	Quality int
	Text    string
}

type GeneratedImage struct {
	Path string
	ImageSpec
	Size int64
}

// RandomSpec sorteia dimensões 600-2400 x 400-1600, qualidade JPEG 60-95 e
// 20-100 palavras aleatórias.
func RandomSpec(rng *rand.Rand) ImageSpec {
	return ImageSpec{
		Width:   600 + rng.IntN(1801),
		Height:  400 + rng.IntN(1201),
		Quality: 60 + rng.IntN(36),
		Text:    RandomText(rng, 20+rng.IntN(81)),
	}
}

// RandomText gera n palavras de 3 a 10 caracteres alfanuméricos.
func RandomText(rng *rand.Rand, n int) string {
	words := make([]string, n)
	for i := range words {
		b := make([]byte, 3+rng.IntN(8))
		for j := range b {
			b[j] = alphabet[rng.IntN(len(alphabet))]
		}
		words[i] = string(b)
	}
	return strings.Join(words, " ")
}

// RenderJPEG desenha fundo branco, linhas coloridas aleatórias e o texto
// quebrado na largura da imagem.
func RenderJPEG(w io.Writer, spec ImageSpec, rng *rand.Rand) error {
	img := image.NewRGBA(image.Rect(0, 0, spec.Width, spec.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	for i := 0; i < randomLines; i++ {
		c := color.RGBA{R: uint8(rng.IntN(201)), G: uint8(rng.IntN(201)), B: uint8(rng.IntN(201)), A: 255}
		drawLine(img,
			image.Pt(rng.IntN(spec.Width+1), rng.IntN(spec.Height+1)),
			image.Pt(rng.IntN(spec.Width+1), rng.IntN(spec.Height+1)),
			c)
	}

	d := &font.Drawer{Dst: img, Src: image.Black, Face: basicfont.Face7x13}
	y := textMargin + basicfont.Face7x13.Ascent
	for _, line := range wrap(d, spec.Text, spec.Width-2*textMargin) {
		if y > spec.Height {
			break
		}
		d.Dot = fixed.P(textMargin, y)
		d.DrawString(line)
		y += lineSpacing
	}

	return jpeg.Encode(w, img, &jpeg.Options{Quality: spec.Quality})
}

// wrap quebra o texto em linhas que cabem em maxWidth pixels. Uma palavra
// maior que a linha fica sozinha.
func wrap(d *font.Drawer, text string, maxWidth int) []string {
	var lines []string
	var cur []string
	limit := fixed.I(maxWidth)
	for _, word := range strings.Fields(text) {
		candidate := strings.Join(append(cur, word), " ")
		if len(cur) > 0 && d.MeasureString(candidate) > limit {
			lines = append(lines, strings.Join(cur, " "))
			cur = []string{word}
			continue
		}
		cur = append(cur, word)
	}
	if len(cur) > 0 {
		lines = append(lines, strings.Join(cur, " "))
	}
	return lines
}

// drawLine traça um segmento com 2px de espessura (DDA).
func drawLine(img *image.RGBA, a, b image.Point, c color.Color) {
	dx, dy := b.X-a.X, b.Y-a.Y
	steps := max(abs(dx), abs(dy), 1)
	for i := 0; i <= steps; i++ {
		x := a.X + dx*i/steps
		y := a.Y + dy*i/steps
		img.Set(x, y, c)
		img.Set(x+1, y, c)
		img.Set(x, y+1, c)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// GenerateImages grava count JPEGs test_image_N.jpg em dir.
func GenerateImages(dir string, count int, rng *rand.Rand) ([]GeneratedImage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	out := make([]GeneratedImage, 0, count)
	for i := 1; i <= count; i++ {
		spec := RandomSpec(rng)
		path := filepath.Join(dir, fmt.Sprintf("test_image_%d.jpg", i))
		size, err := writeImage(path, spec, rng)
		if err != nil {
			return out, fmt.Errorf("generate %s: %w", path, err)
		}
		out = append(out, GeneratedImage{Path: path, ImageSpec: spec, Size: size})
	}
	return out, nil
}

func writeImage(path string, spec ImageSpec, rng *rand.Rand) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	if err := RenderJPEG(f, spec, rng); err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func RenderGenerated(images []GeneratedImage) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Filename", "Dimensions", "Quality", "Size (KB)"})
	for _, g := range images {
		t.AppendRow(table.Row{
			filepath.Base(g.Path),
			fmt.Sprintf("%dx%d", g.Width, g.Height),
			g.Quality,
			fmt.Sprintf("%.2f", float64(g.Size)/1024),
		})
	}
	return t.Render()
}

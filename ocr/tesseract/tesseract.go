// Package tesseract implementa ocr.Engine sobre a libtesseract via gosseract.
package tesseract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"slices"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"ocr-gateway/ocr"
)

var ErrLanguageMissing = errors.New("tesseract language data not installed")

// Engine cria um client por chamada. O client do gosseract não é seguro para
// uso concorrente, e o Adapter já limita quantas chamadas rodam ao mesmo tempo.
type Engine struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// New valida que os idiomas pedidos têm traineddata instalado. Falha aqui é o
// que deixa o serviço com engine_ready=false.
func New(languages ...string) (*Engine, error) {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	available, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return nil, fmt.Errorf("list tesseract languages: %w", err)
	}
	for _, lang := range languages {
		if !slices.Contains(available, lang) {
			return nil, fmt.Errorf("%w: %s (available: %s)", ErrLanguageMissing, lang, strings.Join(available, ","))
		}
	}
	return &Engine{languages: languages, clientFactory: gosseract.NewClient}, nil
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) Languages() []string { return slices.Clone(e.languages) }

func (e *Engine) Recognize(ctx context.Context, img image.Image) ([]ocr.Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(e.languages...); err != nil {
		return nil, fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := c.GetBoundingBoxesVerbose()
	if err != nil {
		return nil, fmt.Errorf("recognize words: %w", err)
	}
	return groupLines(boxes), nil
}

type lineKey struct{ block, par, line int }

// groupLines agrupa as palavras por (bloco, parágrafo, linha) preservando a
// ordem em que o tesseract as devolveu.
func groupLines(boxes []gosseract.BoundingBox) []ocr.Line {
	var lines []ocr.Line
	index := make(map[lineKey]int)
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		k := lineKey{b.BlockNum, b.ParNum, b.LineNum}
		i, ok := index[k]
		if !ok {
			i = len(lines)
			index[k] = i
			lines = append(lines, nil)
		}
		lines[i] = append(lines[i], ocr.Fragment{Text: word, Confidence: b.Confidence / 100.0})
	}
	return lines
}

package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"ocr-gateway/middleware/ratelimit/domain"
)

var (
	ErrEngineUnavailable = errors.New("recognition engine not initialized")
	ErrEngineBusy        = errors.New("recognition engine slot not acquired")
)

// Adapter encapsula o motor. Engine nil significa que a inicialização falhou
// no startup: Ready() fica false e Recognize responde EngineUnavailable sem
// chamar nada.
//
// Pool, quando presente, limita chamadas simultâneas ao motor. Com capacidade
// 1 as chamadas são serializadas.
type Adapter struct {
	engine  Engine
	decoder Decoder
	pool    domain.SlotPool
}

func NewAdapter(engine Engine, decoder Decoder, pool domain.SlotPool) *Adapter {
	if decoder == nil {
		decoder = StdDecoder
	}
	return &Adapter{engine: engine, decoder: decoder, pool: pool}
}

func (a *Adapter) Ready() bool { return a != nil && a.engine != nil }

func (a *Adapter) EngineName() string {
	if !a.Ready() {
		return ""
	}
	return a.engine.Name()
}

func (a *Adapter) Recognize(ctx context.Context, data []byte) Result {
	img, err := a.decoder.Decode(data)
	if err != nil {
		return failed(FailureDecode, err)
	}
	if !a.Ready() {
		return failed(FailureEngineUnavailable, ErrEngineUnavailable)
	}

	if a.pool != nil {
		release, ok := a.pool.Acquire(ctx)
		if !ok {
			return failed(FailureEngineUnavailable, errors.Join(ErrEngineBusy, ctx.Err()))
		}
		defer release()
	}

	lines, err := a.invoke(ctx, img)
	if err != nil {
		return failed(FailureEngineInternal, err)
	}
	text, n := Join(lines)
	return Result{Text: text, Fragments: n}
}

// invoke converte panic do motor em erro comum.
func (a *Adapter) invoke(ctx context.Context, img image.Image) (lines []Line, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine %s panicked: %v", a.engine.Name(), r)
		}
	}()
	lines, err = a.engine.Recognize(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("engine %s: %w", a.engine.Name(), err)
	}
	return lines, nil
}

// Join achata as linhas na ordem de detecção, separando fragmentos por um
// único espaço. Fragmentos vazios são ignorados. Devolve também quantos
// fragmentos entraram no texto.
func Join(lines []Line) (string, int) {
	var sb strings.Builder
	n := 0
	for _, line := range lines {
		for _, f := range line {
			t := strings.TrimSpace(f.Text)
			if t == "" {
				continue
			}
			if n > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(t)
			n++
		}
	}
	return sb.String(), n
}

// Package ocr adapta um motor de reconhecimento externo para o pipeline de
// upload.
//
// O motor é uma caixa-preta: recebe a imagem decodificada e devolve fragmentos
// de texto ordenados (agrupados por linha). O Adapter normaliza essa saída em
// um único texto e converte todas as falhas em um Result explícito, nunca em
// texto com prefixo de erro.
package ocr

import (
	"context"
	"image"
)

// Fragment é um trecho reconhecido. Confidence fica em [0,1] e não é usada
// depois da normalização.
type Fragment struct {
	Text       string
	Confidence float64
}

// Line agrupa fragmentos na ordem de detecção.
type Line []Fragment

// Engine é o contrato mínimo do motor: imagem decodificada entra, linhas saem.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img image.Image) ([]Line, error)
}

// EngineFunc adapta uma função comum como Engine.
type EngineFunc func(ctx context.Context, img image.Image) ([]Line, error)

func (f EngineFunc) Name() string { return "func" }

func (f EngineFunc) Recognize(ctx context.Context, img image.Image) ([]Line, error) {
	return f(ctx, img)
}

// Failure identifica por que o reconhecimento não produziu texto.
type Failure string

const (
	FailureNone              Failure = ""
	FailureDecode            Failure = "decode_failure"
	FailureEngineUnavailable Failure = "engine_unavailable"
	FailureEngineInternal    Failure = "engine_internal"
)

// Result é texto (possivelmente vazio) ou falha, nunca os dois.
type Result struct {
	Text      string
	Fragments int
	Failure   Failure
	Err       error
}

func (r Result) OK() bool { return r.Failure == FailureNone }

func failed(kind Failure, err error) Result {
	return Result{Failure: kind, Err: err}
}

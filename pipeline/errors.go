package pipeline

import (
	"fmt"
	"net/http"
	"time"
)

// Stage é a etapa do pipeline onde a falha aconteceu.
type Stage string

const (
	StageRateLimit   Stage = "rate_limit"
	StageUploadSlot  Stage = "upload_slot"
	StageIngest      Stage = "ingest"
	StageRecognize   Stage = "recognize"
	StagePostProcess Stage = "post_process"
)

// Kind é a categoria estável da falha; define o status HTTP.
type Kind string

const (
	KindRateLimited       Kind = "rate_limited"
	KindBusy              Kind = "busy"
	KindPayloadTooLarge   Kind = "payload_too_large"
	KindValidation        Kind = "validation"
	KindDecodeFailure     Kind = "decode_failure"
	KindEngineUnavailable Kind = "engine_unavailable"
	KindEngineInternal    Kind = "engine_internal"
	KindInternal          Kind = "internal"
)

// Error é o único tipo de falha que sai do Orchestrator.
type Error struct {
	Stage      Stage
	Kind       Kind
	Detail     string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Status() int {
	switch e.Kind {
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Recognition indica as três falhas que colapsam em RecognitionFailure.
func (e *Error) Recognition() bool {
	switch e.Kind {
	case KindDecodeFailure, KindEngineUnavailable, KindEngineInternal:
		return true
	}
	return false
}

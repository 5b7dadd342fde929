// Package pipeline encadeia as etapas de um upload:
// rate limit -> vaga de upload -> leitura limitada -> reconhecimento ->
// extração de URLs.
//
// A primeira falha encerra o pipeline. A vaga consumida no rate limit não é
// devolvida quando uma etapa posterior falha.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ocr-gateway/ingest"
	"ocr-gateway/middleware/ratelimit/domain"
	"ocr-gateway/ocr"
	"ocr-gateway/urlextract"
)

type Admitter interface {
	Decide(ctx context.Context, key domain.Key, route string) domain.Decision
}

type Ingester interface {
	Ingest(open ingest.Opener) (ingest.Upload, error)
}

type Recognizer interface {
	Recognize(ctx context.Context, data []byte) ocr.Result
}

// Slots limita uploads em andamento. Só é consultado depois da admissão.
type Slots interface {
	Acquire(ctx context.Context) (release func(), err error)
}

type Options struct {
	Admitter   Admitter
	Ingester   Ingester
	Recognizer Recognizer
	// Uploads nil não limita.
	Uploads Slots

	// Window e MaxSize só entram nas mensagens de erro.
	Window  time.Duration
	MaxSize int64

	Extract func(text string) []string
	Logger  *zap.Logger
	Now     func() time.Time
}

type Request struct {
	ClientID  string
	RequestID string
	Route     string
	Open      ingest.Opener
}

// Response é o corpo de sucesso. Decision é preenchida assim que o rate limit
// decide, inclusive quando Process retorna erro.
type Response struct {
	Text        string          `json:"text"`
	URLs        []string        `json:"urls"`
	FileSize    int64           `json:"file_size"`
	ProcessTime float64         `json:"process_time"`
	Decision    domain.Decision `json:"-"`
}

type Orchestrator struct {
	admit     Admitter
	ingester  Ingester
	recognize Recognizer
	uploads   Slots
	extract   func(string) []string
	window    time.Duration
	maxSize   int64
	log       *zap.Logger
	now       func() time.Time
	denyLog   *rate.Sometimes
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Ingester == nil {
		return nil, errors.New("pipeline: ingester is required")
	}
	if opts.Recognizer == nil {
		return nil, errors.New("pipeline: recognizer is required")
	}
	o := &Orchestrator{
		admit:     opts.Admitter,
		ingester:  opts.Ingester,
		recognize: opts.Recognizer,
		uploads:   opts.Uploads,
		extract:   opts.Extract,
		window:    opts.Window,
		maxSize:   opts.MaxSize,
		log:       opts.Logger,
		now:       opts.Now,
		denyLog:   &rate.Sometimes{First: 5, Interval: time.Second},
	}
	if o.extract == nil {
		o.extract = urlextract.Extract
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Process executa o pipeline. Todo erro retornado é *Error.
func (o *Orchestrator) Process(ctx context.Context, req Request) (Response, error) {
	var resp Response
	log := o.log.With(zap.String("client", req.ClientID))
	if req.RequestID != "" {
		log = log.With(zap.String("request_id", req.RequestID))
	}

	if o.admit != nil {
		dec := o.admit.Decide(ctx, domain.Key(req.ClientID), req.Route)
		resp.Decision = dec
		if !dec.Allowed {
			o.denyLog.Do(func() {
				log.Warn("rate limit exceeded", zap.Int("limit", dec.Limit), zap.Duration("retry_after", dec.RetryAfter))
			})
			return resp, &Error{
				Stage:      StageRateLimit,
				Kind:       KindRateLimited,
				Detail:     fmt.Sprintf("Rate limit exceeded. Maximum %d requests per %d seconds allowed.", dec.Limit, int64(o.window/time.Second)),
				RetryAfter: dec.RetryAfter,
			}
		}
	}

	if o.uploads != nil {
		release, err := o.uploads.Acquire(ctx)
		if err != nil {
			log.Warn("no upload slot", zap.Error(err))
			return resp, &Error{
				Stage:  StageUploadSlot,
				Kind:   KindBusy,
				Detail: "Server busy, try again later",
				Err:    err,
			}
		}
		defer release()
	}

	start := o.now()
	upload, err := o.ingester.Ingest(req.Open)
	if err != nil {
		return resp, o.ingestError(log, upload, err)
	}
	log.Info("upload received", zap.String("filename", upload.Filename), zap.Int64("size", upload.Size))

	text, urls, perr := o.recognizeAndExtract(ctx, upload.Data)
	if perr != nil {
		log.Error("upload failed",
			zap.String("stage", string(perr.Stage)),
			zap.String("kind", string(perr.Kind)),
			zap.Error(perr.Err))
		return resp, perr
	}
	elapsed := o.now().Sub(start).Seconds()

	log.Info("upload processed",
		zap.Int("text_length", len(text)),
		zap.Int("urls", len(urls)),
		zap.Float64("process_time", elapsed))

	resp.Text = text
	resp.URLs = urls
	resp.FileSize = upload.Size
	resp.ProcessTime = elapsed
	return resp, nil
}

func (o *Orchestrator) ingestError(log *zap.Logger, upload ingest.Upload, err error) *Error {
	switch {
	case errors.Is(err, ingest.ErrPayloadTooLarge):
		log.Warn("file too large", zap.Int64("size", upload.Size), zap.Int64("max_size", o.maxSize))
		return &Error{
			Stage:  StageIngest,
			Kind:   KindPayloadTooLarge,
			Detail: fmt.Sprintf("File too large. Maximum size allowed is %.1f MB", float64(o.maxSize)/(1024*1024)),
			Err:    err,
		}
	case ingest.IsValidation(err):
		log.Info("invalid upload", zap.Error(err))
		return &Error{
			Stage:  StageIngest,
			Kind:   KindValidation,
			Detail: fmt.Sprintf("Invalid upload: %v", err),
			Err:    err,
		}
	default:
		log.Error("upload read failed", zap.Error(err))
		return &Error{
			Stage:  StageIngest,
			Kind:   KindInternal,
			Detail: fmt.Sprintf("Error processing image: %v", err),
			Err:    err,
		}
	}
}

// recognizeAndExtract roda as duas etapas finais; panic em qualquer uma vira
// KindInternal em vez de derrubar o processo.
func (o *Orchestrator) recognizeAndExtract(ctx context.Context, data []byte) (text string, urls []string, perr *Error) {
	stage := StageRecognize
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			perr = &Error{
				Stage:  stage,
				Kind:   KindInternal,
				Detail: fmt.Sprintf("Error processing image: %v", err),
				Err:    err,
			}
		}
	}()

	res := o.recognize.Recognize(ctx, data)
	if !res.OK() {
		return "", nil, recognitionError(res)
	}

	stage = StagePostProcess
	urls = o.extract(res.Text)
	if urls == nil {
		urls = []string{}
	}
	return res.Text, urls, nil
}

func recognitionError(res ocr.Result) *Error {
	kind := KindEngineInternal
	switch res.Failure {
	case ocr.FailureDecode:
		kind = KindDecodeFailure
	case ocr.FailureEngineUnavailable:
		kind = KindEngineUnavailable
	}
	err := res.Err
	if err == nil {
		err = errors.New(string(res.Failure))
	}
	return &Error{
		Stage:  StageRecognize,
		Kind:   kind,
		Detail: fmt.Sprintf("Error processing image: %v", err),
		Err:    err,
	}
}

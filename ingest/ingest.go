// Package ingest lê uploads em blocos de tamanho fixo, abortando assim que o
// total ultrapassa o teto configurado, sem materializar o corpo inteiro.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	DefaultMaxSize   int64 = 10 << 20
	DefaultChunkSize       = 1 << 20
	FileField              = "file"
)

var (
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrMissingFile     = errors.New("missing file field")
	ErrNotMultipart    = errors.New("request is not multipart/form-data")
	ErrMalformed       = errors.New("malformed multipart body")
)

// Source é o stream do arquivo ainda não lido.
type Source struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Opener localiza o arquivo no request. Erros aqui são de validação e acontecem
// antes de qualquer leitura do conteúdo do arquivo.
type Opener func() (Source, error)

// Upload é o arquivo já lido e dentro do limite.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
	Size        int64
}

type Gateway struct {
	MaxSize   int64
	ChunkSize int
}

// Ingest abre a fonte e lê o conteúdo com Read.
func (g Gateway) Ingest(open Opener) (Upload, error) {
	src, err := open()
	if err != nil {
		return Upload{}, err
	}
	data, size, err := Read(src.Body, g.MaxSize, g.ChunkSize)
	if err != nil {
		return Upload{Filename: src.Filename, ContentType: src.ContentType, Size: size}, err
	}
	return Upload{
		Filename:    src.Filename,
		ContentType: src.ContentType,
		Data:        data,
		Size:        size,
	}, nil
}

// Read consome r em blocos de chunkSize. Depois de cada bloco soma ao total;
// se passar de maxSize retorna ErrPayloadTooLarge imediatamente, sem ler o resto.
// Exatamente maxSize bytes é aceito.
func Read(r io.Reader, maxSize int64, chunkSize int) ([]byte, int64, error) {
	if maxSize < 0 {
		maxSize = 0
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var buf bytes.Buffer
	chunk := make([]byte, chunkSize)
	var total int64
	for {
		n, err := fill(r, chunk)
		if n > 0 {
			total += int64(n)
			if total > maxSize {
				return nil, total, fmt.Errorf("%w: read %d bytes, limit is %d", ErrPayloadTooLarge, total, maxSize)
			}
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			return buf.Bytes(), total, nil
		}
		if err != nil {
			return nil, total, fmt.Errorf("read upload: %w", err)
		}
	}
}

// fill lê até encher p ou até o primeiro erro. Diferente de io.ReadFull, mantém
// io.ErrUnexpectedEOF vindo do reader (corpo truncado) separado do fim normal.
func fill(r io.Reader, p []byte) (int, error) {
	n := 0
	for n < len(p) {
		m, err := r.Read(p[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

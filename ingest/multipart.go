package ingest

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MultipartFile devolve um Opener que percorre as partes do corpo multipart até
// achar o campo de arquivo `field`. Partes anteriores são descartadas pelo
// multipart.Reader; o conteúdo do arquivo só é lido depois, pelo Gateway.
func MultipartFile(r *http.Request, field string) Opener {
	return func() (Source, error) {
		mr, err := r.MultipartReader()
		if err != nil {
			return Source{}, fmt.Errorf("%w: %v", ErrNotMultipart, err)
		}
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return Source{}, fmt.Errorf("%w: %q", ErrMissingFile, field)
			}
			if err != nil {
				return Source{}, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			if part.FormName() != field || part.FileName() == "" {
				continue
			}
			return Source{
				Filename:    part.FileName(),
				ContentType: part.Header.Get("Content-Type"),
				Body:        part,
			}, nil
		}
	}
}

// IsValidation indica erros que devem virar 422 (campo ausente ou corpo inválido).
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingFile) || errors.Is(err, ErrNotMultipart) || errors.Is(err, ErrMalformed)
}

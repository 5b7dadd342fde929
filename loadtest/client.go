// Package loadtest reúne os clientes de carga usados contra o gateway: upload
// concorrente, teste por tamanho de arquivo, monitoramento periódico e geração
// de imagens sintéticas.
package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusException = "exception"

	DefaultURL = "http://localhost:8000/upload/"
)

// Result descreve uma tentativa de upload. StatusCode é 0 quando a requisição
// nem chegou a ter resposta.
type Result struct {
	Status       string
	StatusCode   int
	ResponseTime time.Duration
	TextLength   int
	URLs         int
	Error        string
}

func (r Result) OK() bool { return r.Status == StatusSuccess }

type Client struct {
	URL   string
	Field string
	HTTP  *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		URL:   url,
		Field: "file",
		HTTP:  &http.Client{Timeout: timeout},
	}
}

type uploadResponse struct {
	Text string   `json:"text"`
	URLs []string `json:"urls"`
}

// Upload envia o arquivo em path como multipart, sem carregá-lo inteiro em memória.
func (c *Client) Upload(ctx context.Context, path string) Result {
	start := time.Now()
	res, err := c.upload(ctx, path)
	res.ResponseTime = time.Since(start)
	if err != nil {
		res.Status = StatusException
		res.Error = err.Error()
	}
	return res
}

func (c *Client) upload(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		fw, err := mw.CreateFormFile(c.Field, filepath.Base(path))
		if err == nil {
			_, err = io.Copy(fw, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, pr)
	if err != nil {
		_ = pr.Close()
		return Result{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	res := Result{StatusCode: resp.StatusCode}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		res.Status = StatusError
		res.Error = strings.TrimSpace(string(body))
		return res, nil
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return res, fmt.Errorf("decode response: %w", err)
	}
	res.Status = StatusSuccess
	res.TextLength = len(out.Text)
	res.URLs = len(out.URLs)
	return res, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package loadtest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

type SizedFile struct {
	Path string
	Size int64
}

type SizeResult struct {
	File   SizedFile
	Result Result
}

var imageExts = []string{".jpg", ".jpeg", ".png"}

// PickBySize lista as imagens de dir ordenadas por tamanho e escolhe até count
// arquivos espalhados pela faixa de tamanhos.
func PickBySize(dir string, count int) ([]SizedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []SizedFile
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(imageExts, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		files = append(files, SizedFile{Path: filepath.Join(dir, e.Name()), Size: info.Size()})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image files found in %s", dir)
	}
	slices.SortStableFunc(files, func(a, b SizedFile) int {
		switch {
		case a.Size < b.Size:
			return -1
		case a.Size > b.Size:
			return 1
		}
		return strings.Compare(a.Path, b.Path)
	})

	if count < 1 || len(files) <= count {
		return files, nil
	}
	step := len(files) / count
	picked := make([]SizedFile, 0, count)
	for i := 0; i < len(files) && len(picked) < count; i += step {
		picked = append(picked, files[i])
	}
	return picked, nil
}

// SizeTest envia um arquivo por vez, com pause entre eles.
func SizeTest(ctx context.Context, c *Client, files []SizedFile, pause time.Duration, progress io.Writer) []SizeResult {
	if progress == nil {
		progress = io.Discard
	}
	out := make([]SizeResult, 0, len(files))
	for i, f := range files {
		fmt.Fprintf(progress, "Testing file: %s (%.2f KB)\n", filepath.Base(f.Path), float64(f.Size)/1024)
		res := c.Upload(ctx, f.Path)
		out = append(out, SizeResult{File: f, Result: res})
		if res.OK() {
			fmt.Fprintf(progress, "  Result: success, %.2fs\n", res.ResponseTime.Seconds())
		} else {
			fmt.Fprintf(progress, "  Result: failed (%d) %s, %.2fs\n", res.StatusCode, truncate(res.Error, 50), res.ResponseTime.Seconds())
		}

		if i == len(files)-1 || pause <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return out
		case <-time.After(pause):
		}
	}
	return out
}

func RenderSizes(results []SizeResult) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"File", "Size (KB)", "Status", "Response Time (s)"})
	for _, r := range results {
		status := "Success"
		if !r.Result.OK() {
			status = "Failed"
		}
		t.AppendRow(table.Row{
			filepath.Base(r.File.Path),
			fmt.Sprintf("%.2f", float64(r.File.Size)/1024),
			status,
			fmt.Sprintf("%.2f", r.Result.ResponseTime.Seconds()),
		})
	}
	return t.Render()
}

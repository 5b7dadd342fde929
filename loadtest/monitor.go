package loadtest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

var monitorHeader = []string{"timestamp", "response_time", "status", "status_code", "error_message"}

type MonitorConfig struct {
	Image    string
	Interval time.Duration
	Output   string
	// Duration 0 roda até o ctx ser cancelado.
	Duration time.Duration
	Progress io.Writer
	Now      func() time.Time
}

// Monitor envia um upload a cada Interval e acrescenta uma linha no CSV de
// Output (o cabeçalho só é escrito em arquivo novo/vazio). Retorna quantas
// linhas foram escritas.
func Monitor(ctx context.Context, c *Client, cfg MonitorConfig) (int, error) {
	if cfg.Interval <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	if cfg.Progress == nil {
		cfg.Progress = io.Discard
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if info.Size() == 0 {
		if err := w.Write(monitorHeader); err != nil {
			return 0, err
		}
		w.Flush()
	}

	rows := 0
	for {
		started := time.Now()
		stamp := cfg.Now().Format("2006-01-02 15:04:05")
		res := c.Upload(ctx, cfg.Image)
		if ctx.Err() != nil && !res.OK() && res.StatusCode == 0 {
			// cancelado no meio da requisição: não registra
			break
		}

		if err := w.Write(monitorRow(stamp, res)); err != nil {
			return rows, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return rows, err
		}
		rows++
		fmt.Fprintf(cfg.Progress, "%s - %s Response time: %.2fs, Status: %d\n", stamp, res.Status, res.ResponseTime.Seconds(), res.StatusCode)

		wait := cfg.Interval - time.Since(started)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return rows, nil
		case <-time.After(wait):
		}
	}
	return rows, nil
}

func monitorRow(stamp string, res Result) []string {
	rt := strconv.FormatFloat(res.ResponseTime.Seconds(), 'f', 6, 64)
	if res.Status == StatusException {
		rt = "-1"
	}
	msg := ""
	if !res.OK() {
		msg = truncate(res.Error, 100)
	}
	return []string{stamp, rt, res.Status, strconv.Itoa(res.StatusCode), msg}
}

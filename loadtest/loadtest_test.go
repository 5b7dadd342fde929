package loadtest

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"image/jpeg"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uploadServer aceita os primeiros `allow` uploads e responde 429 depois.
func uploadServer(t *testing.T, allow int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"detail":"missing file"}`))
			return
		}
		data, _ := io.ReadAll(f)
		_ = f.Close()
		if n > allow {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"detail":"Rate limit exceeded."}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"text":      hdr.Filename + " http://x.io",
			"urls":      []string{"http://x.io"},
			"file_size": len(data),
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), size), 0o600))
	return path
}

func TestClientUpload(t *testing.T) {
	srv, _ := uploadServer(t, 10)
	path := writeFile(t, t.TempDir(), "shot.jpg", 64)

	res := NewClient(srv.URL, 5*time.Second).Upload(context.Background(), path)
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, len("shot.jpg http://x.io"), res.TextLength)
	assert.Equal(t, 1, res.URLs)
	assert.Greater(t, res.ResponseTime, time.Duration(0))
}

func TestClientUpload_ErrorStatus(t *testing.T) {
	srv, _ := uploadServer(t, 0)
	path := writeFile(t, t.TempDir(), "shot.jpg", 8)

	res := NewClient(srv.URL, 5*time.Second).Upload(context.Background(), path)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Contains(t, res.Error, "Rate limit exceeded")
}

func TestClientUpload_MissingFileIsException(t *testing.T) {
	srv, hits := uploadServer(t, 10)

	res := NewClient(srv.URL, time.Second).Upload(context.Background(), filepath.Join(t.TempDir(), "nope.jpg"))
	assert.Equal(t, StatusException, res.Status)
	assert.Equal(t, 0, res.StatusCode)
	assert.Equal(t, int32(0), hits.Load())
}

func TestBench(t *testing.T) {
	srv, hits := uploadServer(t, 7)
	path := writeFile(t, t.TempDir(), "shot.jpg", 128)
	var progress bytes.Buffer

	rep := Bench(context.Background(), NewClient(srv.URL, 5*time.Second), BenchConfig{
		Image:    path,
		Requests: 10,
		Workers:  3,
		Progress: &progress,
	})

	assert.Equal(t, int32(10), hits.Load())
	assert.Equal(t, 10, rep.Requests)
	assert.Equal(t, 7, rep.Success)
	assert.Equal(t, 3, rep.Failed)
	assert.Len(t, rep.Errors, 3)
	assert.Greater(t, rep.Throughput, 0.0)
	assert.LessOrEqual(t, rep.Latency.Min, rep.Latency.P95)
	assert.LessOrEqual(t, rep.Latency.P95, rep.Latency.Max)
	assert.Contains(t, progress.String(), "Completed 10/10 requests")

	out := rep.Render()
	assert.Contains(t, out, "METRIC")
	assert.Contains(t, out, "Successful requests")
	assert.Contains(t, out, "7 (70.00%)")
	assert.Contains(t, out, "Status code: 429")
}

func TestBench_RateLimitedPacing(t *testing.T) {
	srv, _ := uploadServer(t, 100)
	path := writeFile(t, t.TempDir(), "shot.jpg", 8)

	start := time.Now()
	rep := Bench(context.Background(), NewClient(srv.URL, 5*time.Second), BenchConfig{
		Image:    path,
		Requests: 4,
		Workers:  4,
		RPS:      20,
	})
	assert.Equal(t, 4, rep.Success)
	// burst 1 a 20/s: 3 esperas de 50ms
	assert.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)
}

func TestBench_SampleErrorsCapped(t *testing.T) {
	srv, _ := uploadServer(t, 0)
	path := writeFile(t, t.TempDir(), "shot.jpg", 8)

	rep := Bench(context.Background(), NewClient(srv.URL, 5*time.Second), BenchConfig{Image: path, Requests: 9, Workers: 2})
	assert.Equal(t, 9, rep.Failed)
	assert.Len(t, rep.Errors, maxSampleErrors)
	assert.Equal(t, Latency{}, rep.Latency)
}

func TestSummarize(t *testing.T) {
	var times []time.Duration
	for i := 1; i <= 20; i++ {
		times = append(times, time.Duration(21-i)*time.Second)
	}

	got := Summarize(times)
	assert.Equal(t, time.Second, got.Min)
	assert.Equal(t, 20*time.Second, got.Max)
	assert.Equal(t, 10500*time.Millisecond, got.Avg)
	// int(20*0.95) = 19 -> maior valor
	assert.Equal(t, 20*time.Second, got.P95)

	assert.Equal(t, Latency{}, Summarize(nil))
	one := Summarize([]time.Duration{3 * time.Second})
	assert.Equal(t, Latency{Avg: 3 * time.Second, Min: 3 * time.Second, Max: 3 * time.Second, P95: 3 * time.Second}, one)
}

func TestPickBySize(t *testing.T) {
	dir := t.TempDir()
	for i, size := range []int{500, 100, 900, 300, 700, 200} {
		writeFile(t, dir, "img"+string(rune('a'+i))+".jpg", size)
	}
	writeFile(t, dir, "notes.txt", 50)
	writeFile(t, dir, "scan.PNG", 400)

	all, err := PickBySize(dir, 10)
	require.NoError(t, err)
	require.Len(t, all, 7)
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].Size, all[i].Size)
	}

	picked, err := PickBySize(dir, 3)
	require.NoError(t, err)
	require.Len(t, picked, 3)
	// step = 7/3 = 2 -> índices 0, 2, 4
	assert.Equal(t, []int64{100, 300, 500}, []int64{picked[0].Size, picked[1].Size, picked[2].Size})

	_, err = PickBySize(t.TempDir(), 3)
	assert.Error(t, err)
}

func TestSizeTest(t *testing.T) {
	srv, _ := uploadServer(t, 1)
	dir := t.TempDir()
	files := []SizedFile{
		{Path: writeFile(t, dir, "small.jpg", 10), Size: 10},
		{Path: writeFile(t, dir, "large.jpg", 2048), Size: 2048},
	}

	results := SizeTest(context.Background(), NewClient(srv.URL, 5*time.Second), files, time.Millisecond, nil)
	require.Len(t, results, 2)
	assert.True(t, results[0].Result.OK())
	assert.False(t, results[1].Result.OK())

	out := RenderSizes(results)
	assert.Contains(t, out, "SIZE (KB)")
	assert.Contains(t, out, "small.jpg")
	assert.Contains(t, out, "2.00")
	assert.Contains(t, out, "Failed")
}

func TestMonitor(t *testing.T) {
	srv, _ := uploadServer(t, 2)
	dir := t.TempDir()
	img := writeFile(t, dir, "shot.jpg", 16)
	out := filepath.Join(dir, "monitor.csv")
	c := NewClient(srv.URL, 5*time.Second)
	fixed := time.Date(2024, 6, 23, 10, 15, 0, 0, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var rows int
	var err error
	done := make(chan struct{})
	go func() {
		defer close(done)
		rows, err = Monitor(ctx, c, MonitorConfig{
			Image:    img,
			Interval: 5 * time.Millisecond,
			Output:   out,
			Duration: time.Second,
			Now:      func() time.Time { return fixed },
		})
	}()
	require.Eventually(t, func() bool {
		data, _ := os.ReadFile(out)
		return strings.Count(string(data), "\n") >= 4
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
	require.NoError(t, err)

	records := readCSV(t, out)
	require.GreaterOrEqual(t, len(records), 4)
	assert.Equal(t, monitorHeader, records[0])
	assert.Equal(t, rows, len(records)-1)
	assert.Equal(t, []string{"2024-06-23 10:15:00", records[1][1], "success", "200", ""}, records[1])
	assert.Equal(t, "error", records[3][2])
	assert.Equal(t, "429", records[3][3])
	assert.Contains(t, records[3][4], "Rate limit exceeded")

	// segunda execução acrescenta sem repetir o cabeçalho
	_, err = Monitor(context.Background(), c, MonitorConfig{Image: img, Interval: time.Hour, Output: out, Duration: 50 * time.Millisecond})
	require.NoError(t, err)
	again := readCSV(t, out)
	assert.Equal(t, len(records)+1, len(again))
	assert.Equal(t, 1, countHeaders(again))
}

func TestMonitor_ExceptionRow(t *testing.T) {
	srv, _ := uploadServer(t, 2)
	out := filepath.Join(t.TempDir(), "monitor.csv")

	rows, err := Monitor(context.Background(), NewClient(srv.URL, time.Second), MonitorConfig{
		Image:    filepath.Join(t.TempDir(), "missing.jpg"),
		Interval: time.Hour,
		Output:   out,
		Duration: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	records := readCSV(t, out)
	require.Len(t, records, 2)
	assert.Equal(t, "-1", records[1][1])
	assert.Equal(t, StatusException, records[1][2])
	assert.Equal(t, "0", records[1][3])
}

func TestMonitor_InvalidInterval(t *testing.T) {
	_, err := Monitor(context.Background(), NewClient("", time.Second), MonitorConfig{Output: filepath.Join(t.TempDir(), "x.csv")})
	assert.Error(t, err)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func countHeaders(records [][]string) int {
	n := 0
	for _, r := range records {
		if r[0] == "timestamp" {
			n++
		}
	}
	return n
}

func TestRandomSpecRanges(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		s := RandomSpec(rng)
		assert.GreaterOrEqual(t, s.Width, 600)
		assert.LessOrEqual(t, s.Width, 2400)
		assert.GreaterOrEqual(t, s.Height, 400)
		assert.LessOrEqual(t, s.Height, 1600)
		assert.GreaterOrEqual(t, s.Quality, 60)
		assert.LessOrEqual(t, s.Quality, 95)
		words := strings.Fields(s.Text)
		assert.GreaterOrEqual(t, len(words), 20)
		assert.LessOrEqual(t, len(words), 100)
		for _, w := range words {
			assert.GreaterOrEqual(t, len(w), 3)
			assert.LessOrEqual(t, len(w), 10)
		}
	}
}

func TestGenerateImages(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "images")
	rng := rand.New(rand.NewPCG(42, 7))

	imgs, err := GenerateImages(dir, 2, rng)
	require.NoError(t, err)
	require.Len(t, imgs, 2)

	for i, g := range imgs {
		assert.Equal(t, filepath.Join(dir, "test_image_"+string(rune('1'+i))+".jpg"), g.Path)
		f, err := os.Open(g.Path)
		require.NoError(t, err)
		cfg, err := jpeg.DecodeConfig(f)
		_ = f.Close()
		require.NoError(t, err)
		assert.Equal(t, g.Width, cfg.Width)
		assert.Equal(t, g.Height, cfg.Height)
		assert.Greater(t, g.Size, int64(0))
	}

	out := RenderGenerated(imgs)
	assert.Contains(t, out, "test_image_1.jpg")
	// StyleRounded põe o cabeçalho em caixa alta
	assert.Contains(t, out, "DIMENSIONS")
	assert.NotContains(t, out, "Dimensions")
}

func TestRenderJPEG_Deterministic(t *testing.T) {
	spec := ImageSpec{Width: 600, Height: 400, Quality: 80, Text: "hello world"}
	var a, b bytes.Buffer
	require.NoError(t, RenderJPEG(&a, spec, rand.New(rand.NewPCG(3, 3))))
	require.NoError(t, RenderJPEG(&b, spec, rand.New(rand.NewPCG(3, 3))))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ocr-gateway/loadtest"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		url     string
		timeout time.Duration
	)
	root := &cobra.Command{
		Use:           "ocr-loadtest",
		Short:         "Load, size and availability checks against the OCR gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&url, "url", loadtest.DefaultURL, "upload endpoint")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "per-request timeout")
	client := func() *loadtest.Client { return loadtest.NewClient(url, timeout) }

	root.AddCommand(benchCmd(client), sizesCmd(client), monitorCmd(client), genImagesCmd())
	return root
}

func benchCmd(client func() *loadtest.Client) *cobra.Command {
	cfg := loadtest.BenchConfig{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Send concurrent uploads and report latency and throughput",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Requests < 1 {
				return fmt.Errorf("--requests must be >= 1")
			}
			out := cmd.OutOrStdout()
			cfg.Progress = out
			fmt.Fprintf(out, "Starting concurrent test with %d requests using %d workers\n", cfg.Requests, cfg.Workers)
			fmt.Fprintf(out, "Testing image: %s\n", cfg.Image)
			rep := loadtest.Bench(cmd.Context(), client(), cfg)
			fmt.Fprintln(out, rep.Render())
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.Image, "image", "test.jpg", "image to upload")
	cmd.Flags().IntVar(&cfg.Requests, "requests", 20, "number of requests")
	cmd.Flags().IntVar(&cfg.Workers, "workers", 5, "concurrent workers")
	cmd.Flags().Float64Var(&cfg.RPS, "rps", 0, "max requests per second (0 = unlimited)")
	return cmd
}

func sizesCmd(client func() *loadtest.Client) *cobra.Command {
	var (
		dir   string
		count int
		pause time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sizes",
		Short: "Upload images spread across the size range of a directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			files, err := loadtest.PickBySize(dir, count)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Testing %d files of different sizes\n", len(files))
			results := loadtest.SizeTest(cmd.Context(), client(), files, pause, out)
			fmt.Fprintln(out, loadtest.RenderSizes(results))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "./test_images", "directory with .jpg/.jpeg/.png images")
	cmd.Flags().IntVar(&count, "count", 3, "number of files to test")
	cmd.Flags().DurationVar(&pause, "pause", time.Second, "pause between uploads")
	return cmd
}

func monitorCmd(client func() *loadtest.Client) *cobra.Command {
	cfg := loadtest.MonitorConfig{}
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Upload periodically and append results to a CSV file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			cfg.Progress = out
			fmt.Fprintf(out, "Sending requests every %s, results in %s (Ctrl+C to stop)\n", cfg.Interval, cfg.Output)
			start := time.Now()
			rows, err := loadtest.Monitor(cmd.Context(), client(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Monitoring completed after %.1f minutes, %d samples\n", time.Since(start).Minutes(), rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.Image, "image", "", "image to upload")
	cmd.Flags().DurationVar(&cfg.Interval, "interval", time.Minute, "time between requests")
	cmd.Flags().StringVar(&cfg.Output, "output", "monitoring_results.csv", "CSV output file")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 0, "stop after this long (0 = until interrupted)")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func genImagesCmd() *cobra.Command {
	var (
		dir   string
		count int
		seed  uint64
	)
	cmd := &cobra.Command{
		Use:   "gen-images",
		Short: "Generate JPEG test images with random text",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if seed == 0 {
				seed = uint64(time.Now().UnixNano())
			}
			rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generating %d test images in %s\n", count, dir)
			imgs, err := loadtest.GenerateImages(dir, count, rng)
			fmt.Fprintln(out, loadtest.RenderGenerated(imgs))
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "output-dir", "./test_images", "directory to write images to")
	cmd.Flags().IntVar(&count, "count", 10, "number of images")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed (0 = time based)")
	return cmd
}

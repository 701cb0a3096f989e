package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danmuck/wirekit/internal/config"
	"github.com/danmuck/wirekit/internal/logging"
	"github.com/danmuck/wirekit/internal/observability"
)

const (
	modePcap  = "pcap"
	modeHTTP2 = "http2"
)

type options struct {
	configPath string
	mode       string
	format     string
	output     string
	metrics    string
	maxRecords int
	strict     bool
	inputs     []string
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("wirectl", flag.ContinueOnError)
	var opts options
	fs.StringVar(&opts.configPath, "config", "", "path to wirectl.toml")
	fs.StringVar(&opts.mode, "mode", modePcap, "input kind: pcap|http2")
	fs.StringVar(&opts.format, "format", "", "output format: json|cbor|yaml (overrides config)")
	fs.StringVar(&opts.output, "o", "", "output path (overrides config, - for stdout)")
	fs.StringVar(&opts.metrics, "metrics", "", "serve /metrics on this address (overrides config)")
	fs.IntVar(&opts.maxRecords, "max-records", -1, "stop after this many records (overrides config)")
	fs.BoolVar(&opts.strict, "strict", false, "fail on the first record that does not decode")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	opts.inputs = fs.Args()
	if len(opts.inputs) == 0 {
		return options{}, fmt.Errorf("no input files (use - for stdin)")
	}
	switch opts.mode {
	case modePcap, modeHTTP2:
	default:
		return options{}, fmt.Errorf("unknown mode %q", opts.mode)
	}
	return opts, nil
}

// resolve layers command-line overrides on top of the file config.
func resolve(opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if opts.format != "" {
		cfg.Output.Format = opts.format
	}
	if opts.output != "" {
		cfg.Output.Path = opts.output
	}
	if opts.metrics != "" {
		cfg.Metrics.Addr = opts.metrics
	}
	if opts.maxRecords >= 0 {
		cfg.Decode.MaxRecords = opts.maxRecords
	}
	if opts.strict {
		cfg.Decode.Strict = true
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func main() {
	logging.ConfigureRuntime()
	logger := observability.InitLogger("wirectl", uuid.NewString())

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.Error().Err(err).Msg("invalid arguments")
		os.Exit(2)
	}
	if err := execute(opts, logger); err != nil {
		logger.Error().Err(err).Msg("wirectl failed")
		os.Exit(1)
	}
}

// execute resolves the config and decodes every input. Deferred cleanup
// always runs before main decides the exit code.
func execute(opts options, logger zerolog.Logger) error {
	cfg, err := resolve(opts)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.ConfigureLevel(cfg.Log.Level)

	if cfg.Metrics.Addr != "" {
		stop := serveMetrics(cfg.Metrics.Addr, logger)
		defer stop()
	}

	out, closeOut, err := openOutput(cfg.Output.Path)
	if err != nil {
		return err
	}
	defer closeOut()

	enc, err := newEncoder(cfg.Output.Format, out)
	if err != nil {
		return err
	}

	var failed []string
	for _, input := range opts.inputs {
		if err := run(opts.mode, input, cfg, enc, logger); err != nil {
			logger.Error().Err(err).Str("input", input).Msg("decode failed")
			failed = append(failed, input)
			if cfg.Decode.Strict {
				break
			}
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d input(s) failed to decode: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

func run(mode, input string, cfg config.Config, enc encoder, logger zerolog.Logger) error {
	in, closeIn, err := openInput(input)
	if err != nil {
		return err
	}
	defer closeIn()

	logger.Info().Str("input", input).Str("mode", mode).Str("format", cfg.Output.Format).Msg("decoding")
	switch mode {
	case modeHTTP2:
		return decodeHTTP2(input, in, enc, logger)
	default:
		return decodePcap(input, in, cfg.Decode, enc, logger)
	}
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func serveMetrics(addr string, logger zerolog.Logger) func() {
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              addr,
		Handler:           observability.NewRouter("wirectl", logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

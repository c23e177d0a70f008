package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/VanDung-dev/colblob/host"
	"github.com/VanDung-dev/colblob/metrics"
	"github.com/VanDung-dev/colblob/network"
	"github.com/VanDung-dev/colblob/objstore"
	"github.com/VanDung-dev/colblob/surface"
)

type options struct {
	remote    string
	compress  bool
	s3        bool
	s3cfg     *objstore.Config
	preload   bool
	widenF16  bool
	rows      uint64
	verbose   bool
	showStats bool
}

func main() {
	opts := options{s3cfg: objstore.DefaultConfig()}

	pflag.StringVar(&opts.remote, "remote", "", "read the container from a blob server at this address")
	pflag.BoolVar(&opts.compress, "compress", false, "request compressed ranges from the blob server")
	pflag.BoolVar(&opts.s3, "s3", false, "read the container from an S3-compatible store")
	pflag.StringVar(&opts.s3cfg.Endpoint, "s3-endpoint", opts.s3cfg.Endpoint, "object store endpoint")
	pflag.StringVar(&opts.s3cfg.Bucket, "s3-bucket", opts.s3cfg.Bucket, "object store bucket")
	pflag.StringVar(&opts.s3cfg.Region, "s3-region", opts.s3cfg.Region, "object store region")
	pflag.BoolVar(&opts.s3cfg.UseSSL, "s3-ssl", false, "use TLS for the object store")
	pflag.BoolVar(&opts.preload, "preload", false, "stream the container into memory before decoding")
	pflag.BoolVar(&opts.widenF16, "widen-float16", false, "project half floats as numbers")
	pflag.Uint64Var(&opts.rows, "rows", 10, "number of rows to print")
	pflag.BoolVarP(&opts.verbose, "verbose", "v", false, "log chunk loads")
	pflag.BoolVar(&opts.showStats, "stats", false, "print read and decode metrics when done")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <path | name | key>\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(2)
	}
	opts.s3cfg.AccessKey = os.Getenv("COLBLOB_S3_ACCESS_KEY")
	opts.s3cfg.SecretKey = os.Getenv("COLBLOB_S3_SECRET_KEY")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, pflag.Arg(0)); err != nil {
		log.Fatalf("%s: %v", surface.Classify(err), err)
	}
}

func run(ctx context.Context, opts options, target string) error {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	loop := host.NewLoop("inspect", logger)
	defer loop.Shutdown()

	container, cleanup, err := openContainer(ctx, opts, loop, logger, target)
	if err != nil {
		return err
	}
	defer cleanup()

	reg := prometheus.NewRegistry()
	cfg := surface.DefaultConfig()
	cfg.Logger = logger
	cfg.ForcePreload = opts.preload
	cfg.Metrics = metrics.NewMetrics("colblob", reg)
	cfg.Projector.WidenFloat16 = opts.widenF16

	f, err := surface.FromContainer(ctx, container, cfg)
	if err != nil {
		return err
	}
	if err := f.PrintSchema(ctx); err != nil {
		return err
	}

	arr, err := f.Materialize(ctx)
	if err != nil {
		return err
	}
	defer arr.Release()

	enc := json.NewEncoder(os.Stdout)
	n := min(opts.rows, arr.Len())
	for i := uint64(0); i < n; i++ {
		v, err := arr.Get(i)
		if err != nil {
			return err
		}
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	logger.Info("Done", "rows", arr.Len(), "printed", n)

	if opts.showStats {
		return printStats(reg)
	}
	return nil
}

func openContainer(ctx context.Context, opts options, loop *host.Loop, logger *slog.Logger, target string) (host.Blob, func(), error) {
	switch {
	case opts.remote != "":
		ccfg := network.DefaultClientConfig()
		ccfg.Compress = opts.compress
		ccfg.Token = os.Getenv("COLBLOB_AUTH_TOKEN")
		ccfg.Logger = logger
		client, err := network.Dial(opts.remote, ccfg)
		if err != nil {
			return nil, nil, err
		}
		blob, err := network.OpenRemote(ctx, client, loop, target)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return blob, func() { _ = client.Close() }, nil

	case opts.s3:
		opts.s3cfg.Logger = logger
		store, err := objstore.NewStore(opts.s3cfg)
		if err != nil {
			return nil, nil, err
		}
		blob, err := store.Open(ctx, loop, target)
		if err != nil {
			return nil, nil, err
		}
		return blob, func() {}, nil

	default:
		data, err := os.ReadFile(target)
		if err != nil {
			return nil, nil, err
		}
		return host.NewMemBlob(loop, data), func() {}, nil
	}
}

func printStats(reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(os.Stderr, "%s %v\n", mf.GetName(), m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				fmt.Fprintf(os.Stderr, "%s_count %d\n", mf.GetName(), m.GetHistogram().GetSampleCount())
			}
		}
	}
	return nil
}

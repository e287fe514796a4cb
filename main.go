package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hbomb79/mediabatch/internal"
	"github.com/hbomb79/mediabatch/pkg/logger"
)

// version is set at build time via ldflags.
var version = "dev"

var log = logger.Get("Bootstrap")

type options struct {
	configPath string
	envPath    string
	from       int
	to         int
}

func main() {
	opts := options{}
	flag.StringVar(&opts.configPath, "config", "mediabatch.yaml", "path to the YAML configuration file")
	flag.StringVar(&opts.envPath, "env", ".env", "path to an optional file of environment variables")
	flag.IntVar(&opts.from, "from", 0, "first label to operate on (overrides label_range.start)")
	flag.IntVar(&opts.to, "to", 0, "last label to operate on (overrides label_range.end)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "version":
		fmt.Printf("mediabatch %s\n", version)
		return
	case "help", "-h", "--help":
		printUsage()
		return
	case "config":
		if len(args) < 2 || args[1] != "init" {
			fmt.Fprintln(os.Stderr, "Usage: mediabatch config init [path]")
			os.Exit(1)
		}
		path := opts.configPath
		if len(args) > 2 {
			path = args[2]
		}
		if err := internal.WriteDefaultConfig(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", path)
		return
	}

	if err := run(opts, args); err != nil {
		log.Emit(logger.FATAL, "%v\n", err)
		os.Exit(1)
	}
}

// run loads the configuration and executes a single command against the
// record store. Only process-level failures are returned: items which fail
// are reported in the run summary.
func run(opts options, args []string) error {
	configPath := opts.configPath
	if _, err := os.Stat(configPath); err != nil {
		log.Emit(logger.DEBUG, "No configuration file at %s, using environment only\n", configPath)
		configPath = ""
	}

	config, err := internal.LoadConfig(configPath, opts.envPath)
	if err != nil {
		return err
	}
	logger.SetMinLoggingLevel(logger.ParseLevel(config.LogLevel).Level())
	if opts.from > 0 {
		config.LabelRange.Start = opts.from
	}
	if opts.to > 0 {
		config.LabelRange.End = opts.to
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runner := internal.NewRunner(config)
	if err := runner.Start(ctx); err != nil {
		return err
	}

	_, err = runner.Run(ctx, func(ctx context.Context) error {
		return dispatch(ctx, runner, args)
	})

	return err
}

func dispatch(ctx context.Context, runner *internal.Runner, args []string) error {
	command, rest := args[0], args[1:]
	switch command {
	case "fetch":
		if len(rest) < 1 {
			return fmt.Errorf("usage: mediabatch fetch <archive|collection|ytdlp|playlist|poster> [references...]")
		}
		switch rest[0] {
		case "archive":
			return runner.FetchArchive(ctx, rest[1:])
		case "collection":
			if len(rest) != 2 {
				return fmt.Errorf("usage: mediabatch fetch collection <name>")
			}
			return runner.FetchCollection(ctx, rest[1])
		case "ytdlp":
			return runner.FetchTool(ctx, rest[1:], false)
		case "playlist":
			return runner.FetchTool(ctx, rest[1:], true)
		case "poster":
			return runner.FetchPosters(ctx)
		default:
			return fmt.Errorf("unknown fetch source %q", rest[0])
		}
	case "download":
		return runner.Download(ctx)
	case "cut":
		return runner.Cut(ctx, false)
	case "watch":
		return runner.Cut(ctx, true)
	case "split", "shorts":
		return runner.Split(ctx)
	case "thumbnail", "render":
		return runner.Thumbnail(ctx)
	case "image":
		if len(rest) < 2 {
			return fmt.Errorf("usage: mediabatch image <enhance|resize|whiten> <file...>")
		}
		return runner.Image(rest[0], rest[1:])
	case "rewrite":
		return runner.Rewrite(ctx)
	case "schedule":
		return runner.Schedule()
	case "publish":
		return runner.Publish(ctx)
	case "missing":
		output := "missing_files.log"
		if len(rest) > 0 {
			output = rest[0]
		}
		return runner.Missing(output)
	case "import-legacy":
		if len(rest) != 1 {
			return fmt.Errorf("usage: mediabatch import-legacy <file>")
		}
		return runner.ImportLegacy(rest[0])
	case "status":
		runner.Status()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage() {
	fmt.Println(`mediabatch - A label-indexed batch pipeline for publishing archive media

Usage:
  mediabatch [options] <command> [arguments]

Options:
  -config <path>   YAML configuration file (default mediabatch.yaml)
  -env <path>      Environment file loaded before the configuration (default .env)
  -from <label>    First label to operate on
  -to <label>      Last label to operate on

Commands:
  config init [path]           Write the default configuration
  fetch archive <id...>        Fetch archive items by identifier
  fetch collection <name>      Fetch every item of an archive collection
  fetch ytdlp <url...>         Fetch items using yt-dlp
  fetch playlist <url...>      Fetch every entry of a playlist using yt-dlp
  fetch poster                 Download a poster for each record
  download                     Download the media of each record
  cut                          Trim and watermark each source file
  watch                        Cut new source files as they appear
  split                        Split each source file in to shorts
  thumbnail                    Render a thumbnail for each label
  image <op> <file...>         Enhance, resize or whiten image files
  rewrite                      Regenerate record titles and descriptions
  schedule                     Assign publish dates to records
  publish                      Upload each record
  missing [file]               Log labels without a source file
  import-legacy <file>         Import a legacy record file
  status                       Count records by status
  version                      Print the mediabatch version
  help                         Show this help message`)
}

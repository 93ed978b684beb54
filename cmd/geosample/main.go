package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/twpayne/go-geosample"
)

// Config is the configuration read from the environment.
type Config struct {
	LogLevel       string `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat      string `env:"LOG_FORMAT" envDefault:"text"`
	DefaultCRS     string `env:"GEOSAMPLE_DEFAULT_CRS" envDefault:"EPSG:4326"`
	BlockCacheSize int    `env:"GEOSAMPLE_BLOCK_CACHE_SIZE" envDefault:"64"`
}

func newRootCmd(cfg Config, stdout io.Writer) *cobra.Command {
	var samplerOptions []geosample.SamplerOption

	rootCmd := &cobra.Command{
		Use:           "geosample",
		Short:         "Sample values from GeoTIFFs at geographic coordinates",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := newLogger(cfg, cmd.ErrOrStderr())
			samplerOptions = []geosample.SamplerOption{
				geosample.WithDefaultCRS(cfg.DefaultCRS),
				geosample.WithGeoTIFFOptions(geosample.WithBlockCacheSize(cfg.BlockCacheSize)),
				geosample.WithLogger(logger),
			}
		},
	}
	rootCmd.SetOut(stdout)

	// newSampler returns a Sampler rooted at path's directory and the name of
	// path within it.
	newSampler := func(path string) (*geosample.Sampler, string) {
		options := append(slices.Clone(samplerOptions), geosample.WithFS(os.DirFS(filepath.Dir(path))))
		return geosample.NewSampler(options...), filepath.Base(path)
	}

	var oldResolution, newResolution float64
	valueCmd := &cobra.Command{
		Use:   "value file latitude longitude",
		Short: "Resample a raster and extract the value at a coordinate",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseLatLon(args[1], args[2])
			if err != nil {
				return err
			}
			sampler, name := newSampler(args[0])
			value, err := sampler.ResampleAndExtractValue(cmd.Context(), name, p, oldResolution, newResolution)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatValue(value))
			return nil
		},
	}
	valueCmd.Flags().Float64Var(&oldResolution, "old-resolution", 10, "source resolution in meters")
	valueCmd.Flags().Float64Var(&newResolution, "new-resolution", 10, "new resolution in meters")

	extractCmd := &cobra.Command{
		Use:   "extract file latitude longitude",
		Short: "Extract the value of the pixel at a coordinate",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseLatLon(args[1], args[2])
			if err != nil {
				return err
			}
			sampler, name := newSampler(args[0])
			values, err := sampler.ExtractValuesAtCoordinates(cmd.Context(), name, p)
			if err != nil {
				return err
			}
			for _, value := range values {
				fmt.Fprintln(cmd.OutOrStdout(), formatValue(value))
			}
			return nil
		},
	}

	var windowSize int
	leeCmd := &cobra.Command{
		Use:   "lee file latitude longitude",
		Short: "Apply a Lee filter to the window at a coordinate",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseLatLon(args[1], args[2])
			if err != nil {
				return err
			}
			sampler, name := newSampler(args[0])
			filtered, err := sampler.LeeFilter(cmd.Context(), windowSize, name, p)
			if err != nil {
				return err
			}
			if filtered == nil {
				fmt.Fprintln(cmd.OutOrStdout(), formatValue(math.NaN()))
				return nil
			}
			for row := range filtered.Height {
				fields := make([]string, filtered.Width)
				for col := range filtered.Width {
					fields[col] = formatValue(filtered.At(row, col))
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(fields, " "))
			}
			return nil
		},
	}
	leeCmd.Flags().IntVar(&windowSize, "window-size", 3, "window size in pixels")

	rootCmd.AddCommand(valueCmd, extractCmd, leeCmd)
	return rootCmd
}

func parseLatLon(latStr, lonStr string) (geosample.LatLon, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return geosample.LatLon{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return geosample.LatLon{}, fmt.Errorf("longitude: %w", err)
	}
	return geosample.LatLon{Lat: lat, Lon: lon}, nil
}

func formatValue(value float64) string {
	if math.IsNaN(value) {
		return "none"
	}
	return strconv.FormatFloat(value, 'g', -1, 64)
}

func newLogger(cfg Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}

func run() error {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return err
	}
	return newRootCmd(cfg, os.Stdout).ExecuteContext(context.Background())
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/dyuri/cplcconv/internal/config"
	"github.com/dyuri/cplcconv/internal/logging"
	"github.com/dyuri/cplcconv/internal/model"
	"github.com/dyuri/cplcconv/internal/store"
	"github.com/dyuri/cplcconv/internal/text"
	"github.com/dyuri/cplcconv/pkg/cplcconv"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Configured by the root command before any subcommand runs
var (
	cfg    config.Config
	logger = zerolog.Nop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cplcconv",
	Short: "Decode KKND2 mission files and creature libraries",
	Long: `cplcconv is a tool for inspecting KKND2 game data.

It decodes CPLC mission files into their chain of placed entities (units,
computer players, map configuration, camera start, ripples) and names the
units through a creature library (.klb). Decoded missions can be printed
as a report or JSON, or exported to SQLite.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config-dir", ".", "Directory searched for "+config.FileName)
	flags.StringP("library", "l", "", "Creature library (default from config: Creature.klb)")
	flags.Int("code-page", 0, "Code page of library names: 65001, 1252, 1250, 437")
	flags.String("log-level", "", "Log level: trace, debug, info, warn, error, off")
	flags.String("log-format", "", "Log format: console, json")

	viper.BindPFlag("library", flags.Lookup("library"))
	viper.BindPFlag("codePage", flags.Lookup("code-page"))
	viper.BindPFlag("logLevel", flags.Lookup("log-level"))
	viper.BindPFlag("logFormat", flags.Lookup("log-format"))

	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(libraryCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(versionCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	configDir, _ := cmd.Flags().GetString("config-dir")
	if err := config.Load(configDir); err != nil {
		return err
	}

	var err error
	if cfg, err = config.Get(); err != nil {
		return err
	}

	logger = logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	return nil
}

func decodeOptions() []cplcconv.Option {
	return []cplcconv.Option{
		cplcconv.WithLogger(logger),
		cplcconv.WithCodePage(cfg.CodePage),
	}
}

// loadLibrary decodes the configured creature library. A missing file is
// only a warning: the report then shows every name as "Unknown entry".
func loadLibrary() (*model.Library, error) {
	path := cfg.Library

	lib, err := cplcconv.ParseLibraryFile(path, decodeOptions()...)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("library", path).Msg("creature library not found, names unavailable")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse creature library %s: %w", path, err)
	}

	logger.Debug().Str("library", path).Int("creatures", lib.Len()).Msg("loaded creature library")
	return lib, nil
}

// dump command
var dumpCmd = &cobra.Command{
	Use:   "dump <mission.cpl>",
	Short: "Print the entities of a mission file",
	Long: `Decode a CPLC mission file and print every entity of its chain.

Unit names are looked up in the creature library by the entity's kind
byte. If the library file does not exist a warning is logged and every
name is shown as "Unknown entry"; a library that exists but cannot be
decoded is an error. The default output is a tree report; --format json
gives a machine-readable document.`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	dumpCmd.Flags().String("format", "", "Output format: tree, json (default from config: tree)")
	dumpCmd.Flags().Bool("gzip", false, "Compress the output with gzip")
	viper.BindPFlag("dump.format", dumpCmd.Flags().Lookup("format"))
}

func runDump(cmd *cobra.Command, args []string) (err error) {
	inputPath := args[0]
	outputPath, _ := cmd.Flags().GetString("output")
	compress, _ := cmd.Flags().GetBool("gzip")
	format := cfg.Dump.Format

	if format != "tree" && format != "json" {
		return fmt.Errorf("unknown format: %s", format)
	}

	lib, err := loadLibrary()
	if err != nil {
		return err
	}

	chain, err := cplcconv.ParseCPLCFile(inputPath, cplcconv.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("parse mission file: %w", err)
	}

	out, err := openOutput(cmd, outputPath, compress)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()

	switch format {
	case "json":
		return writeJSON(out, chainToJSON(inputPath, chain, lib))
	default:
		return cplcconv.WriteReport(out, chain, lib)
	}
}

// output is the destination of a command, optionally gzip-compressed
type output struct {
	io.Writer
	closers []io.Closer
}

// Close closes the gzip stream before the file under it
func (o *output) Close() error {
	var first error
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func openOutput(cmd *cobra.Command, path string, compress bool) (*output, error) {
	out := &output{Writer: cmd.OutOrStdout()}
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create output file: %w", err)
		}
		out.Writer = f
		out.closers = append(out.closers, f)
	}
	if compress {
		zw := gzip.NewWriter(out.Writer)
		if path != "" {
			zw.Name = strings.TrimSuffix(filepath.Base(path), ".gz")
		}
		out.Writer = zw
		out.closers = append(out.closers, zw)
	}
	return out, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func chainToJSON(path string, chain *model.EntityChain, lib *model.Library) map[string]interface{} {
	entities := make([]map[string]interface{}, len(chain.Entities))
	for i, e := range chain.Entities {
		entities[i] = map[string]interface{}{
			"index":   i,
			"kind":    e.Kind,
			"name":    lib.NameOf(uint16(e.Kind)),
			"x":       e.Placement.X,
			"y":       e.Placement.Y,
			"offset":  e.Offset,
			"variant": e.Payload.Variant(),
			"data":    e.Payload,
		}
	}

	return map[string]interface{}{
		"file": path,
		"header": map[string]interface{}{
			"fileOffsetBias": chain.Header.FileOffsetBias,
			"fileSize":       chain.Header.FileSize,
			"lists": []uint32{
				chain.Header.List1,
				chain.Header.List2,
				chain.Header.List3,
				chain.Header.List4,
			},
		},
		"entities": entities,
	}
}

// library command
var libraryCmd = &cobra.Command{
	Use:   "library <Creature.klb>",
	Short: "List the creatures of a library",
	Long: `Decode a creature library and list every creature by id.

Array properties are shown with their named values.`,
	Args: cobra.ExactArgs(1),
	RunE: runLibrary,
}

func init() {
	libraryCmd.Flags().Bool("json", false, "Output as JSON")
}

func runLibrary(cmd *cobra.Command, args []string) error {
	inputPath := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	lib, err := cplcconv.ParseLibraryFile(inputPath, decodeOptions()...)
	if err != nil {
		return fmt.Errorf("parse creature library: %w", err)
	}

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), libraryToJSON(lib))
	}
	return text.NewWriter(cmd.OutOrStdout()).WriteLibrary(lib)
}

func libraryToJSON(lib *model.Library) []map[string]interface{} {
	ids := lib.IDs()
	result := make([]map[string]interface{}, len(ids))
	for i, id := range ids {
		c, _ := lib.Lookup(id)
		entry := map[string]interface{}{
			"id":       c.ID,
			"name":     c.Name,
			"sizeHint": c.SizeHint,
			"icon": map[string]interface{}{
				"size":            c.Icon.SizeInBytes,
				"pixelDataOffset": c.Icon.PixelDataOffset,
			},
		}
		if len(c.Properties) > 0 {
			entry["properties"] = c.Properties
		}
		result[i] = entry
	}
	return result
}

// info command
var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Display file information",
	Long: `Display a summary of a mission file or creature library.

The file type is detected from its magic number.`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func init() {
	infoCmd.Flags().Bool("json", false, "Output as JSON")
}

func runInfo(cmd *cobra.Command, args []string) error {
	inputPath := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat input file: %w", err)
	}

	format, err := cplcconv.DetectFormat(f)
	if err != nil {
		return err
	}

	info := map[string]interface{}{
		"file":     inputPath,
		"format":   format.String(),
		"fileSize": stat.Size(),
	}

	var header *model.Header
	switch format {
	case cplcconv.FormatCPLC:
		chain, err := cplcconv.ParseCPLC(f, stat.Size(), cplcconv.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("parse mission file: %w", err)
		}
		header = &chain.Header
		info["fileOffsetBias"] = chain.Header.FileOffsetBias
		info["declaredSize"] = chain.Header.FileSize
		info["entities"] = len(chain.Entities)
		info["variants"] = countVariants(chain)
	case cplcconv.FormatLibrary:
		lib, err := cplcconv.ParseLibrary(f, stat.Size(), decodeOptions()...)
		if err != nil {
			return fmt.Errorf("parse creature library: %w", err)
		}
		info["creatures"] = lib.Len()
	default:
		return fmt.Errorf("%s: %w", inputPath, cplcconv.ErrInvalidFormat)
	}

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), info)
	}
	return outputInfoText(cmd.OutOrStdout(), info, stat.Size(), header)
}

func countVariants(chain *model.EntityChain) map[string]int {
	counts := make(map[string]int)
	for _, e := range chain.Entities {
		counts[e.Payload.Variant()]++
	}
	return counts
}

func outputInfoText(w io.Writer, info map[string]interface{}, fileSize int64, header *model.Header) error {
	fmt.Fprintf(w, "File:      %s\n", info["file"])
	fmt.Fprintf(w, "Format:    %s\n", info["format"])
	fmt.Fprintf(w, "File Size: %s (%d bytes)\n", humanize.Bytes(uint64(fileSize)), fileSize)

	if n, ok := info["creatures"]; ok {
		fmt.Fprintf(w, "Creatures: %d\n", n)
		return nil
	}

	fmt.Fprintln(w)
	if err := text.NewWriter(w).WriteHeader(*header); err != nil {
		return err
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Entities:  %d\n", info["entities"])

	counts := info["variants"].(map[string]int)
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-22s %d\n", name, counts[name])
	}
	return nil
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export <mission.cpl>",
	Short: "Export a mission to SQLite",
	Long: `Decode a mission file and store its entities, together with the
creature library used to name them, in a SQLite database.

Every run adds a new import; earlier imports are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("db", "", "SQLite database file (default from config: cplc.db)")
	viper.BindPFlag("export.db", exportCmd.Flags().Lookup("db"))
}

func runExport(cmd *cobra.Command, args []string) error {
	inputPath := args[0]
	dbPath := cfg.Export.DB

	lib, err := loadLibrary()
	if err != nil {
		return err
	}

	chain, err := cplcconv.ParseCPLCFile(inputPath, cplcconv.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("parse mission file: %w", err)
	}

	s, err := store.Open(dbPath, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.Export(filepath.Base(inputPath), chain, lib)
	if err != nil {
		return fmt.Errorf("export %s: %w", inputPath, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entities from %s to %s\n", len(chain.Entities), inputPath, dbPath)
	fmt.Fprintf(cmd.OutOrStdout(), "  Import: %s\n", id)
	return nil
}

// version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cplcconv version %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "built: %s\n", date)
	},
}

// Command firmfinder enriches a CSV of business records against an online
// directory and writes the results as JSON.
//
// Usage:
//
//	firmfinder -in leads.csv -out enriched.json
//	firmfinder -in leads.csv -sessions 2 -contacts  # requires FIRMFINDER_* env vars
//
// The input CSV needs a header row with a "name" column; "city", "state",
// and "website" columns are optional hints.
package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/leadgroove/firmfinder"
	"github.com/leadgroove/firmfinder/batch"
	"github.com/leadgroove/firmfinder/httpcache"
	"github.com/leadgroove/firmfinder/session"
)

// fileConfig is the YAML configuration file schema. Flags override it.
type fileConfig struct {
	BaseURL         string  `yaml:"base_url"`
	Sessions        int     `yaml:"sessions"`
	SubBatchSize    int     `yaml:"sub_batch_size"`
	CheckpointEvery int     `yaml:"checkpoint_every"`
	Threshold       float64 `yaml:"threshold"`
	ContactReveal   bool    `yaml:"contact_reveal"`
	Proxy           struct {
		Host     string `yaml:"host"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"proxy"`
}

func main() {
	in := flag.String("in", "-", "input CSV path, - for stdin")
	out := flag.String("out", "-", "output JSON path, - for stdout")
	configPath := flag.String("config", "", "YAML configuration file")
	baseURL := flag.String("base-url", "", "directory service origin (default: primary service)")
	sessions := flag.Int("sessions", 0, "parallel sessions (default 1)")
	subBatch := flag.Int("sub-batch", 0, "targets per session (default 10)")
	checkpointEvery := flag.Int("checkpoint-every", 0, "results per checkpoint write (default 5)")
	threshold := flag.Float64("threshold", 0, "candidate acceptance threshold (default 0.65)")
	contacts := flag.Bool("contacts", false, "follow decision-maker profiles for contact details")
	noBrowser := flag.Bool("no-browser", false, "disable reading cookies from browser stores (enabled by default)")
	noCache := flag.Bool("no-cache", false, "disable page caching (enabled by default with 30-day TTL)")
	cacheTTL := flag.Duration("cache-ttl", 30*24*time.Hour, "page cache time-to-live")
	noResume := flag.Bool("no-resume", false, "disable checkpoint resume")
	proxyHost := flag.String("proxy", "", "sticky proxy gateway host:port")
	proxyUser := flag.String("proxy-user", "", "proxy gateway username")
	proxyPass := flag.String("proxy-pass", "", "proxy gateway password")
	debug := flag.Bool("debug", false, "enable debug logging")
	verbose := flag.Bool("v", false, "verbose logging (same as -debug)")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug || *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	// Credentials come from the environment; a local .env is a convenience.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debug("no .env loaded", "error", err)
	}

	if err := run(context.Background(), logger, cliArgs{
		in: *in, out: *out, configPath: *configPath, baseURL: *baseURL,
		sessions: *sessions, subBatch: *subBatch, checkpointEvery: *checkpointEvery,
		threshold: *threshold, contacts: *contacts, noBrowser: *noBrowser,
		noCache: *noCache, cacheTTL: *cacheTTL, noResume: *noResume,
		proxyHost: *proxyHost, proxyUser: *proxyUser, proxyPass: *proxyPass,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

//nolint:govet // fieldalignment: mirrors flag declaration order
type cliArgs struct {
	in, out, configPath, baseURL    string
	sessions, subBatch              int
	checkpointEvery                 int
	threshold                       float64
	contacts, noBrowser             bool
	noCache, noResume               bool
	cacheTTL                        time.Duration
	proxyHost, proxyUser, proxyPass string
}

func run(ctx context.Context, logger *slog.Logger, args cliArgs) error {
	var cfg fileConfig
	if args.configPath != "" {
		data, err := os.ReadFile(args.configPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}

	targets, err := readTargets(args.in)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return errors.New("no targets in input")
	}
	logger.Info("targets loaded", "count", len(targets))

	opts := []firmfinder.Option{firmfinder.WithLogger(logger)}

	if base := firstOf(args.baseURL, cfg.BaseURL); base != "" {
		opts = append(opts, firmfinder.WithBaseURL(base))
	}
	if n := firstPositive(args.sessions, cfg.Sessions); n > 0 {
		opts = append(opts, firmfinder.WithSessions(n))
	}
	if n := firstPositive(args.subBatch, cfg.SubBatchSize); n > 0 {
		opts = append(opts, firmfinder.WithSubBatchSize(n))
	}
	if n := firstPositive(args.checkpointEvery, cfg.CheckpointEvery); n > 0 {
		opts = append(opts, firmfinder.WithCheckpointEvery(n))
	}
	if t := args.threshold; t > 0 {
		opts = append(opts, firmfinder.WithThreshold(t))
	} else if cfg.Threshold > 0 {
		opts = append(opts, firmfinder.WithThreshold(cfg.Threshold))
	}
	if args.contacts || cfg.ContactReveal {
		opts = append(opts, firmfinder.WithContactReveal())
	}
	if !args.noBrowser {
		opts = append(opts, firmfinder.WithBrowserCookies())
	}
	if host := firstOf(args.proxyHost, cfg.Proxy.Host); host != "" {
		opts = append(opts, firmfinder.WithProxy(host,
			firstOf(args.proxyUser, cfg.Proxy.Username),
			firstOf(args.proxyPass, cfg.Proxy.Password)))
	}

	if !args.noCache {
		cache, err := httpcache.New(args.cacheTTL)
		if err != nil {
			logger.Warn("failed to initialize cache, continuing without cache", "error", err)
		} else {
			defer func() {
				if err := cache.Close(); err != nil {
					logger.Warn("failed to close cache", "error", err)
				}
			}()
			opts = append(opts, firmfinder.WithCache(cache))
		}
	}

	if !args.noResume {
		store, err := batch.NewDiskStore(ctx, 30*24*time.Hour)
		if err != nil {
			logger.Warn("failed to initialize checkpoint store, resume disabled", "error", err)
		} else {
			defer func() {
				if err := store.Close(); err != nil {
					logger.Warn("failed to close checkpoint store", "error", err)
				}
			}()
			opts = append(opts, firmfinder.WithStore(store))
		}
	}

	opts = append(opts, firmfinder.WithChallengeResolver(promptResolver(logger)))

	results, err := firmfinder.ResolveBatch(ctx, targets, opts...)
	if err != nil {
		return err
	}

	var resolved int
	for _, res := range results {
		if res.Tier != "unresolved" {
			resolved++
		}
	}
	logger.Info("batch finished", "targets", len(results), "resolved", resolved)

	return writeResults(args.out, results)
}

// promptResolver asks a human to clear the verification gate in a browser.
func promptResolver(logger *slog.Logger) batch.ChallengeResolver {
	return batch.ChallengeResolverFunc(func(ctx context.Context, _ *session.Session) error {
		logger.Warn("verification challenge: solve it in a logged-in browser, then press Enter")
		done := make(chan struct{})
		go func() {
			reader := bufio.NewReader(os.Stdin)
			_, _ = reader.ReadString('\n') //nolint:errcheck // any input resumes
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// readTargets parses the input CSV. The header row names the columns; only
// "name" is required.
func readTargets(path string) ([]firmfinder.Target, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close() //nolint:errcheck // read-only file
		r = f
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	nameCol, ok := cols["name"]
	if !ok {
		nameCol, ok = cols["company_name"]
	}
	if !ok {
		nameCol, ok = cols["company"]
	}
	if !ok {
		return nil, errors.New(`input CSV needs a "name" column`)
	}

	field := func(row []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var targets []firmfinder.Target
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV row: %w", err)
		}
		if nameCol >= len(row) || strings.TrimSpace(row[nameCol]) == "" {
			continue
		}
		targets = append(targets, firmfinder.Target{
			RawName:    strings.TrimSpace(row[nameCol]),
			HintCity:   field(row, "city"),
			HintState:  field(row, "state"),
			HintDomain: firstOf(field(row, "website"), field(row, "domain")),
		})
	}
	return targets, nil
}

func writeResults(path string, results []firmfinder.Result) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "close output: %v\n", err)
			}
		}()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

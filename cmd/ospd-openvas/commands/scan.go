package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/janowagner/ospd-openvas/cmd/ospd-openvas/internal/format"
	"github.com/janowagner/ospd-openvas/pkg/event"
	"github.com/janowagner/ospd-openvas/pkg/kb"
	"github.com/janowagner/ospd-openvas/pkg/netutil"
	"github.com/janowagner/ospd-openvas/pkg/prefs"
	"github.com/janowagner/ospd-openvas/pkg/scanexec"
	"github.com/janowagner/ospd-openvas/pkg/vtcache"
)

// NewScanCommand constructs the 'scan' command, running one scan end to
// end against the configured engine.
func NewScanCommand() *cobra.Command {
	var (
		scanID      string
		target      string
		ports       string
		vtOIDs      []string
		vtParams    []string
		vtGroups    []string
		options     []string
		credFile    string
		pingCheck   bool
		pingTimeout time.Duration
		progress    bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a scan against a target",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.With().Str("command", "scan").Logger()

			if target == "" {
				return fmt.Errorf("a target is required")
			}
			if ports == "" {
				ports = cfg.Scan.DefaultPorts
			}
			if scanID == "" {
				scanID = uuid.NewString()
			}

			req := &prefs.Request{
				ScanID: scanID,
				Target: target,
				Ports:  ports,
				VTs: prefs.VTSelection{
					Single: make(map[string]map[string]string),
					Groups: vtGroups,
				},
			}
			for _, oid := range vtOIDs {
				if _, ok := req.VTs.Single[oid]; !ok {
					req.VTs.Single[oid] = make(map[string]string)
				}
			}
			for _, spec := range vtParams {
				oid, param, value, err := splitVTParam(spec)
				if err != nil {
					return err
				}
				if _, ok := req.VTs.Single[oid]; !ok {
					req.VTs.Single[oid] = make(map[string]string)
				}
				req.VTs.Single[oid][param] = value
			}
			var err error
			req.Options, err = parseOptions(options)
			if err != nil {
				return err
			}
			if credFile != "" {
				req.Credentials, err = loadCredentials(credFile)
				if err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			if pingCheck {
				for _, host := range netutil.ExpandTarget(target) {
					alive, err := netutil.PingHost(ctx, host, pingTimeout)
					if err != nil || !alive {
						logger.Warn().Str("host", host).Msg("host did not answer the ping probe")
					}
				}
			}

			store := kb.NewMemoryStore(cfg.KB.Indices)
			controller, cache, bus, err := buildController(ctx, store)
			if err != nil {
				return err
			}
			logger.Info().Int("vts", cache.Len()).Str("feed", cache.Version()).Msg("VT table ready")

			var (
				mu      sync.Mutex
				results []scanexec.Result
			)
			controller.WithResultSink(scanexec.ResultFunc(
				func(ctx context.Context, scanID string, result scanexec.Result) {
					mu.Lock()
					results = append(results, result)
					mu.Unlock()
					bus.Publish(ctx, event.ScanResult, scanexec.ResultEvent{ScanID: scanID, Result: result})
				}))
			controller.WithProgressSink(scanexec.NewBusSink(bus))
			if progress {
				bus.Subscribe(event.ScanProgress, func(ctx context.Context, data any) {
					if update, ok := data.(scanexec.ProgressEvent); ok {
						logger.Info().Float64("percent", update.Percent).Msg("scan progress")
					}
				})
			}

			// A first interrupt stops the scan gracefully, a second one
			// kills the process.
			interrupts := make(chan os.Signal, 2)
			signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(interrupts)
			go func() {
				<-interrupts
				logger.Info().Str("scan", scanID).Msg("interrupt received, stopping scan")
				if err := controller.StopScan(ctx, scanID); err != nil {
					logger.Error().Err(err).Msg("failed to stop scan")
				}
				<-interrupts
				os.Exit(1)
			}()

			state, err := controller.Exec(ctx, req)
			formatter := format.New(cmd.OutOrStdout())
			mu.Lock()
			defer mu.Unlock()
			formatter.ScanSummary(scanID, target, state, results)
			return err
		},
	}

	cmd.Flags().StringVar(&scanID, "id", "", "Scan ID (generated when empty)")
	cmd.Flags().StringVarP(&target, "target", "t", "", "Target hosts (comma list, CIDR or range)")
	cmd.Flags().StringVarP(&ports, "ports", "p", "", "Port specification, e.g. T:1-1024,U:53")
	cmd.Flags().StringSliceVar(&vtOIDs, "vt", nil, "VT OID to run (repeatable)")
	cmd.Flags().StringSliceVar(&vtParams, "vt-param", nil, "VT parameter override as oid:param=value (repeatable)")
	cmd.Flags().StringSliceVar(&vtGroups, "vt-group", nil, "VT group filter as family=<name> (repeatable)")
	cmd.Flags().StringSliceVar(&options, "option", nil, "Scanner option as key=value (repeatable)")
	cmd.Flags().StringVar(&credFile, "credentials", "", "YAML file with per-service credentials")
	cmd.Flags().BoolVar(&pingCheck, "ping-check", false, "Probe target reachability before scanning")
	cmd.Flags().DurationVar(&pingTimeout, "ping-timeout", 3*time.Second, "Timeout for the ping probe")
	cmd.Flags().BoolVar(&progress, "progress", false, "Log progress updates while the scan runs")

	return cmd
}

// buildController assembles the store-backed collaborators of a scan: the
// VT cache, the event bus and the execution controller.
func buildController(ctx context.Context, store kb.Store) (*scanexec.Controller, *vtcache.Cache, *event.Manager, error) {
	var controller *scanexec.Controller
	cache := vtcache.NewCache(store, func() int {
		return controller.Registry().Active()
	})
	if err := cache.Load(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("load VT table: %w", err)
	}

	launcher := &scanexec.ExecLauncher{Path: cfg.Engine.Path}
	controller = scanexec.NewController(store, cache, launcher).
		WithConfig(scanexec.Config{
			PollInterval:      cfg.Engine.PollInterval,
			ReadyPollInterval: cfg.Engine.ReadyPollInterval,
			ReadyTimeout:      cfg.Engine.ReadyTimeout,
		})

	bus := event.NewManager()
	go vtcache.NewWatcher(cache, cfg.Feed.CheckInterval).Run(ctx)

	return controller, cache, bus, nil
}

func splitVTParam(spec string) (oid, param, value string, err error) {
	oid, rest, ok := strings.Cut(spec, ":")
	if ok {
		if param, value, ok = strings.Cut(rest, "="); ok {
			return oid, param, value, nil
		}
	}
	return "", "", "", fmt.Errorf("malformed --vt-param %q, want oid:param=value", spec)
}

func parseOptions(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	options := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed --option %q, want key=value", pair)
		}
		options[key] = value
	}
	return options, nil
}

// credentialFile is the YAML shape of the --credentials file:
//
//	ssh:
//	  type: up
//	  username: root
//	  password: secret
//	  port: "22"
type credentialFile map[string]struct {
	Type             string `yaml:"type"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	Port             string `yaml:"port"`
	Private          string `yaml:"private"`
	Community        string `yaml:"community"`
	AuthAlgorithm    string `yaml:"auth_algorithm"`
	PrivacyPassword  string `yaml:"privacy_password"`
	PrivacyAlgorithm string `yaml:"privacy_algorithm"`
}

func loadCredentials(path string) (map[string]prefs.Credential, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	var file credentialFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}
	credentials := make(map[string]prefs.Credential, len(file))
	for service, entry := range file {
		credentials[service] = prefs.Credential{
			Type:             entry.Type,
			Username:         entry.Username,
			Password:         entry.Password,
			Port:             entry.Port,
			Private:          entry.Private,
			Community:        entry.Community,
			AuthAlgorithm:    entry.AuthAlgorithm,
			PrivacyPassword:  entry.PrivacyPassword,
			PrivacyAlgorithm: entry.PrivacyAlgorithm,
		}
	}
	return credentials, nil
}

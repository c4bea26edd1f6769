// Package scanexec drives a scan end to end: it allocates a blackboard
// session, writes the scan's preferences, launches the engine process and
// polls the blackboard for readiness, results, progress and completion
// until the session can be released again.
package scanexec

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/janowagner/ospd-openvas/pkg/kb"
	"github.com/janowagner/ospd-openvas/pkg/netutil"
	"github.com/janowagner/ospd-openvas/pkg/prefs"
	"github.com/janowagner/ospd-openvas/pkg/vtcache"
)

// State is the terminal state of a scan execution.
type State int

const (
	StateFinished State = iota
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateFinished:
		return "finished"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Markers the engine writes to the scan's lifecycle key.
const (
	markerNew      = "new"
	markerStopAll  = "stop_all"
	markerFinished = "finished"
)

// Blackboard keys. Lifecycle, preferences, PID and the auxiliary index
// list live on the scan's main index; the per-host keys live on the
// auxiliary indices the engine claims while scanning.
const (
	pidKey     = "internal/ovas_pid"
	dbIndexKey = "internal/dbindex"

	auxScanIDKey    = "internal/scan_id"
	auxHostKey      = "internal/ip"
	auxResultsKey   = "internal/results"
	auxStatusKey    = "internal/status"
	auxStartTimeKey = "internal/start_time"
	auxEndTimeKey   = "internal/end_time"
)

func markerKey(engineID string) string   { return "internal/" + engineID }
func prefsKey(engineID string) string    { return "internal/" + engineID + "/scanprefs" }
func globalScanKey(scanID string) string { return "internal/" + scanID + "/globalscanid" }

// ScoreFunc computes a severity score from a CVSS base vector. ok reports
// whether the vector could be scored.
type ScoreFunc func(vector string) (score float64, ok bool)

// Config holds the controller's timing knobs.
type Config struct {
	// PollInterval is the pause between blackboard sweeps while a scan
	// runs.
	PollInterval time.Duration
	// ReadyPollInterval is the pause between readiness checks after
	// launching the engine.
	ReadyPollInterval time.Duration
	// ReadyTimeout bounds how long the engine may take to pick its
	// preferences up before the launch counts as failed.
	ReadyTimeout time.Duration
}

// DefaultConfig returns the controller's default timings.
func DefaultConfig() Config {
	return Config{
		PollInterval:      3 * time.Second,
		ReadyPollInterval: time.Second,
		ReadyTimeout:      60 * time.Second,
	}
}

// Controller executes scans against a blackboard store and an engine
// launcher.
type Controller struct {
	store    kb.Store
	sessions *kb.SessionManager
	cache    *vtcache.Cache
	encoder  *prefs.Encoder
	launcher Launcher
	registry *Registry
	cfg      Config
	logger   zerolog.Logger

	results  ResultSink
	progress ProgressSink
	score    ScoreFunc
}

// NewController creates a Controller with default timings and no sinks.
func NewController(store kb.Store, cache *vtcache.Cache, launcher Launcher) *Controller {
	return &Controller{
		store:    store,
		sessions: kb.NewSessionManager(store),
		cache:    cache,
		encoder:  prefs.NewEncoder(cache),
		launcher: launcher,
		registry: NewRegistry(),
		cfg:      DefaultConfig(),
		logger:   log.With().Str("component", "scanexec").Logger(),
	}
}

// WithConfig overrides the controller's timings.
func (c *Controller) WithConfig(cfg Config) *Controller {
	c.cfg = cfg
	return c
}

// WithResultSink sets the sink receiving forwarded results.
func (c *Controller) WithResultSink(sink ResultSink) *Controller {
	c.results = sink
	return c
}

// WithProgressSink sets the sink receiving progress updates.
func (c *Controller) WithProgressSink(sink ProgressSink) *Controller {
	c.progress = sink
	return c
}

// WithScoreFunc sets the severity scorer used for alarms. Without one,
// alarms carry no score.
func (c *Controller) WithScoreFunc(score ScoreFunc) *Controller {
	c.score = score
	return c
}

// Registry exposes the active scan registry, e.g. as the feed watcher's
// active-scan counter.
func (c *Controller) Registry() *Registry {
	return c.registry
}

// Exec runs the scan described by req to a terminal state. It blocks until
// the scan finishes, is stopped, or fails; the session's main index is
// released on every terminal path.
func (c *Controller) Exec(ctx context.Context, req *prefs.Request) (State, error) {
	logger := c.logger.With().Str("scan", req.ScanID).Logger()

	// The scan counts as active from the first moment of Exec. A feed
	// check between here and the terminal state must defer its reload
	// instead of swapping the VT table underneath preference encoding or
	// the launch handshake. Registering up front also rejects a duplicate
	// scan ID before any session or engine process exists for it.
	handle := &Handle{ScanID: req.ScanID}
	if err := c.registry.Add(handle); err != nil {
		return StateFailed, err
	}
	defer c.registry.Remove(req.ScanID)

	if c.cache.Pending() {
		err := NewRequestRejectedError(req.ScanID, RejectPendingFeed,
			"a feed update is pending, the scan can not be started")
		c.emitError(ctx, req, err.Detail)
		return StateFailed, err
	}
	if err := netutil.ValidatePortSpec(req.Ports); err != nil {
		rej := NewRequestRejectedError(req.ScanID, RejectNoPorts, "no port list defined")
		c.emitError(ctx, req, rej.Detail)
		return StateFailed, rej
	}

	mainIndex, err := c.sessions.Allocate(ctx)
	if err != nil {
		return StateFailed, fmt.Errorf("allocate blackboard index: %w", err)
	}
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		if err := c.sessions.Release(ctx, mainIndex); err != nil {
			logger.Warn().Int("index", mainIndex).Err(err).Msg("failed to release blackboard index")
		}
	}
	defer release()

	// A fresh engine-side ID per invocation keeps parallel runs of the
	// same caller scan ID apart on the blackboard.
	engineID := uuid.NewString()
	logger = logger.With().Str("engine_scan", engineID).Logger()

	if err := c.store.Push(ctx, mainIndex, markerKey(engineID), markerNew); err != nil {
		return StateFailed, fmt.Errorf("write lifecycle marker: %w", err)
	}
	if err := c.store.Push(ctx, mainIndex, globalScanKey(req.ScanID), engineID); err != nil {
		return StateFailed, fmt.Errorf("write scan id mapping: %w", err)
	}

	records, err := c.encoder.Encode(req, mainIndex)
	if err != nil {
		rej := NewRequestRejectedError(req.ScanID, RejectNoVTs, "no VTs to run")
		c.emitError(ctx, req, rej.Detail)
		return StateFailed, rej
	}
	if err := c.store.Push(ctx, mainIndex, prefsKey(engineID), records...); err != nil {
		return StateFailed, fmt.Errorf("write scan preferences: %w", err)
	}

	c.emitBootstrapLogs(ctx, req)

	pid, err := c.launcher.Start(ctx, engineID)
	if err != nil {
		return StateFailed, NewLaunchFailedError(req.ScanID, err)
	}
	if err := c.store.Push(ctx, mainIndex, pidKey, strconv.Itoa(pid)); err != nil {
		return StateFailed, fmt.Errorf("record engine pid: %w", err)
	}
	logger.Debug().Int("pid", pid).Int("index", mainIndex).Msg("engine launched")
	c.registry.Update(req.ScanID, engineID, mainIndex, pid)

	if err := c.awaitReady(ctx, mainIndex, engineID); err != nil {
		return StateFailed, NewLaunchFailedError(req.ScanID, err)
	}

	state, err := c.poll(ctx, logger, req, mainIndex, engineID)
	if err != nil {
		return StateFailed, err
	}
	release()

	if state == StateFinished {
		c.emitProgress(ctx, req.ScanID, 100)
	}
	logger.Info().Stringer("state", state).Msg("scan ended")
	return state, nil
}

// awaitReady waits for the engine to move the lifecycle marker off "new",
// which it does once it has loaded the scan preferences.
func (c *Controller) awaitReady(ctx context.Context, mainIndex int, engineID string) error {
	deadline := time.Now().Add(c.cfg.ReadyTimeout)
	for {
		marker, _, err := c.store.Get(ctx, mainIndex, markerKey(engineID))
		if err != nil {
			return err
		}
		if marker != markerNew {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("engine not ready after %s", c.cfg.ReadyTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReadyPollInterval):
		}
	}
}

// poll sweeps the blackboard until the engine has vacated every auxiliary
// index claimed for this scan. Two consecutive sweeps without a matching
// index end the scan; a stop marker turns the eventual terminal state into
// StateStopped but polling continues until the engine has drained.
func (c *Controller) poll(ctx context.Context, logger zerolog.Logger, req *prefs.Request, mainIndex int, engineID string) (State, error) {
	hostCount := len(netutil.ExpandTarget(req.Target))
	if hostCount == 0 {
		hostCount = 1
	}

	stopping := false
	noIDFound := false
	for {
		select {
		case <-ctx.Done():
			return StateFailed, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}

		marker, _, err := c.store.Get(ctx, mainIndex, markerKey(engineID))
		if err != nil {
			return StateFailed, err
		}
		if marker == markerStopAll && !stopping {
			stopping = true
			logger.Info().Msg("stop requested, draining engine state")
		}

		found, err := c.sweep(ctx, logger, req, mainIndex, engineID, hostCount)
		if err != nil {
			return StateFailed, err
		}
		if found {
			noIDFound = false
			continue
		}
		if noIDFound {
			break
		}
		noIDFound = true
	}

	if stopping {
		return StateStopped, nil
	}
	return StateFinished, nil
}

// sweep visits every auxiliary index currently registered on the
// blackboard and forwards the state of those belonging to this scan.
// Finished auxiliary indices are unregistered and flushed.
func (c *Controller) sweep(ctx context.Context, logger zerolog.Logger, req *prefs.Request, mainIndex int, engineID string, hostCount int) (bool, error) {
	entries, err := c.store.List(ctx, mainIndex, dbIndexKey)
	if err != nil {
		return false, fmt.Errorf("list auxiliary indices: %w", err)
	}

	conn := kb.NewConn(c.store)
	found := false
	for _, entry := range entries {
		index, err := strconv.Atoi(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Msg("malformed auxiliary index entry, skipping")
			continue
		}
		if index == mainIndex {
			continue
		}
		conn.Select(index)

		auxID, ok, err := conn.Get(ctx, auxScanIDKey)
		if err != nil {
			return false, err
		}
		if !ok || auxID != engineID {
			continue
		}
		found = true

		if err := c.forwardTimestamps(ctx, conn, req); err != nil {
			return false, err
		}
		if err := c.forwardResults(ctx, conn, req.ScanID); err != nil {
			return false, err
		}
		if err := c.forwardStatus(ctx, conn, req.ScanID, hostCount); err != nil {
			return false, err
		}

		// The engine marks each auxiliary index it is done with by
		// writing the finished marker into that index.
		marker, _, err := conn.Get(ctx, markerKey(engineID))
		if err != nil {
			return false, err
		}
		if marker == markerFinished {
			if err := c.store.RemoveListValue(ctx, mainIndex, dbIndexKey, entry); err != nil {
				return false, err
			}
			if err := c.sessions.ReleaseAux(ctx, index); err != nil {
				return false, err
			}
			logger.Debug().Int("index", index).Msg("auxiliary index released")
		}
	}
	return found, nil
}

// forwardTimestamps emits host start/end timestamps as log results. The
// keys are popped so each timestamp is forwarded once.
func (c *Controller) forwardTimestamps(ctx context.Context, conn *kb.Conn, req *prefs.Request) error {
	if timestamp, ok, err := conn.Pop(ctx, auxStartTimeKey); err != nil {
		return err
	} else if ok {
		c.emitResult(ctx, req.ScanID, Result{
			Kind:  ResultLog,
			Host:  req.Target,
			Name:  "HOST_START",
			Value: timestamp,
		})
	}
	if timestamp, ok, err := conn.Pop(ctx, auxEndTimeKey); err != nil {
		return err
	} else if ok {
		c.emitResult(ctx, req.ScanID, Result{
			Kind:  ResultLog,
			Host:  req.Target,
			Name:  "HOST_END",
			Value: timestamp,
		})
	}
	return nil
}

// forwardResults drains the auxiliary index's result list. A result record
// is "TAG|||host|||port|||oid|||value"; malformed records are logged and
// skipped.
func (c *Controller) forwardResults(ctx context.Context, conn *kb.Conn, scanID string) error {
	for {
		record, ok, err := conn.Pop(ctx, auxResultsKey)
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		fields := strings.SplitN(record, kb.Separator, 5)
		if len(fields) < 5 {
			c.logger.Warn().Str("record", record).Msg("malformed result record, skipping")
			continue
		}
		tag, port, oid, value := fields[0], fields[2], fields[3], fields[4]

		host, _, err := conn.Get(ctx, auxHostKey)
		if err != nil {
			return err
		}

		result := Result{
			Port:  port,
			OID:   oid,
			Value: value,
			Host:  host,
		}
		if vt, known := c.cache.Get(oid); known {
			result.Name = vt.Name
			result.QoD = vt.QoD()
			if tag == "ALARM" {
				result.Severity = c.severity(vt)
			}
		}

		switch tag {
		case "ERRMSG":
			result.Kind = ResultError
			result.QoD = ""
		case "LOG":
			result.Kind = ResultLog
		case "HOST_DETAIL":
			result.Kind = ResultHostDetail
			result.Port = ""
			result.QoD = ""
		case "ALARM":
			result.Kind = ResultAlarm
		default:
			c.logger.Warn().Str("tag", tag).Msg("unknown result tag, skipping")
			continue
		}
		c.emitResult(ctx, scanID, result)
	}
	return nil
}

// forwardStatus drains the auxiliary index's status list. A status record
// is "launched/total"; the host percentage is averaged over the expanded
// target size.
func (c *Controller) forwardStatus(ctx context.Context, conn *kb.Conn, scanID string, hostCount int) error {
	for {
		record, ok, err := conn.Pop(ctx, auxStatusKey)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		launchedStr, totalStr, cut := strings.Cut(record, "/")
		if !cut {
			continue
		}
		launched, err := strconv.ParseFloat(launchedStr, 64)
		if err != nil {
			continue
		}
		total, err := strconv.ParseFloat(totalStr, 64)
		if err != nil || total == 0 {
			continue
		}
		percent := (launched / total * 100) / float64(hostCount)
		c.emitProgress(ctx, scanID, percent)
	}
}

// StopScan requests a running scan to stop. It locates the engine scan ID
// by sweeping every index for the caller ID's mapping, writes the stop
// marker and signals the engine once. The executing controller keeps
// polling until the engine has drained, then reports StateStopped.
func (c *Controller) StopScan(ctx context.Context, scanID string) error {
	conn := kb.NewConn(c.store)
	for index := 0; index < c.store.MaxIndex(); index++ {
		conn.Select(index)
		engineID, ok, err := conn.Get(ctx, globalScanKey(scanID))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if err := c.setMarker(ctx, index, engineID, markerStopAll); err != nil {
			return err
		}
		pidValue, ok, err := conn.Get(ctx, pidKey)
		if err != nil {
			return fmt.Errorf("read engine pid for scan %s: %w", scanID, err)
		}
		if !ok {
			return fmt.Errorf("engine pid not recorded for scan %s", scanID)
		}
		pid, err := strconv.Atoi(pidValue)
		if err != nil {
			return fmt.Errorf("malformed engine pid %q: %w", pidValue, err)
		}
		if err := c.launcher.Stop(pid); err != nil {
			return err
		}
		c.logger.Info().Str("scan", scanID).Int("pid", pid).Msg("stop signal sent")
		return nil
	}
	return fmt.Errorf("scan %s not found on the blackboard", scanID)
}

// setMarker replaces the lifecycle marker. The marker key holds a single
// value, so the old one is drained before the new one is written.
func (c *Controller) setMarker(ctx context.Context, index int, engineID, marker string) error {
	key := markerKey(engineID)
	for {
		_, ok, err := c.store.Pop(ctx, index, key)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	return c.store.Push(ctx, index, key, marker)
}

func (c *Controller) severity(vt *vtcache.VT) *float64 {
	if c.score == nil || vt.Severity.Type != "cvss_base_v2" || vt.Severity.Vector == "" {
		return nil
	}
	score, ok := c.score(vt.Severity.Vector)
	if !ok {
		return nil
	}
	return &score
}

// emitBootstrapLogs sends the initial log results of a launch. At least
// one result must be emitted early or downstream consumers drop the
// host's details.
func (c *Controller) emitBootstrapLogs(ctx context.Context, req *prefs.Request) {
	c.emitResult(ctx, req.ScanID, Result{
		Kind:  ResultLog,
		Host:  req.Target,
		Name:  "OpenVAS summary",
		Value: fmt.Sprintf("An OpenVAS Scanner was started for %s.", req.Target),
	})
	c.emitResult(ctx, req.ScanID, Result{
		Kind:  ResultLog,
		Host:  req.Target,
		Name:  "Feed Update",
		Value: fmt.Sprintf("Feed version: %s.", c.cache.Version()),
	})
}

func (c *Controller) emitError(ctx context.Context, req *prefs.Request, detail string) {
	c.emitResult(ctx, req.ScanID, Result{
		Kind:  ResultError,
		Host:  req.Target,
		Value: detail,
	})
}

func (c *Controller) emitResult(ctx context.Context, scanID string, result Result) {
	if c.results != nil {
		c.results.Result(ctx, scanID, result)
	}
}

func (c *Controller) emitProgress(ctx context.Context, scanID string, percent float64) {
	if c.progress != nil {
		c.progress.Progress(ctx, scanID, percent)
	}
}

package vtcache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/janowagner/ospd-openvas/pkg/kb"
)

// Blackboard keys of the feed, all on kb.CacheIndex.
//
//	nvticache/list     list of "filename|||oid" entries, one per VT script
//	nvticache/version  the feed version token
//	nvt:<oid>:meta     list of "field|||value" metadata records
//	nvt:<oid>:prefs    list of "id|||type|||name|||default" parameter records
//	nvt:<oid>:refs     list of "type|||value" reference records
const (
	listKey    = "nvticache/list"
	versionKey = "nvticache/version"
)

func metaKey(oid string) string  { return "nvt:" + oid + ":meta" }
func prefsKey(oid string) string { return "nvt:" + oid + ":prefs" }
func refsKey(oid string) string  { return "nvt:" + oid + ":refs" }

// ActiveFunc reports how many scans are currently running. The cache uses it
// to decide whether a stale feed may be reloaded right away.
type ActiveFunc func() int

// Cache is the in-memory VT table.
//
// Readers (preference encoding, result enrichment) run lock-free relative to
// each other; the table is only ever swapped wholesale by Load, and Load is
// gated on the no-active-scans invariant by CheckFeed.
type Cache struct {
	store  kb.Store
	active ActiveFunc
	logger zerolog.Logger

	mu      sync.RWMutex
	vts     map[string]*VT
	order   []string
	version string
	pending bool
}

// NewCache creates a Cache reading from the store's cache index. active may
// be nil, in which case reloads are never deferred.
func NewCache(store kb.Store, active ActiveFunc) *Cache {
	return &Cache{
		store:  store,
		active: active,
		logger: log.With().Str("component", "vtcache").Logger(),
		vts:    make(map[string]*VT),
	}
}

// FeedVersion reads the store's current feed version token.
func (c *Cache) FeedVersion(ctx context.Context) (string, error) {
	version, _, err := c.store.Get(ctx, kb.CacheIndex, versionKey)
	if err != nil {
		return "", fmt.Errorf("read feed version: %w", err)
	}
	return version, nil
}

// Version returns the feed version token of the currently loaded table.
func (c *Cache) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Pending reports whether a feed reload was deferred because scans were
// running. Scan starts must refuse to run while this is set: the in-memory
// table would not match the records the engine reads from the store.
func (c *Cache) Pending() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pending
}

// IsStale reports whether the store's feed version differs from the loaded
// table's version.
func (c *Cache) IsStale(ctx context.Context) (bool, error) {
	feed, err := c.FeedVersion(ctx)
	if err != nil {
		return false, err
	}
	return feed != c.Version(), nil
}

// Get returns the VT with the given OID.
func (c *Cache) Get(oid string) (*VT, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vt, ok := c.vts[oid]
	return vt, ok
}

// Len returns the number of loaded VTs.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vts)
}

// OIDs returns the loaded OIDs in feed order.
func (c *Cache) OIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// ByFamily groups the loaded OIDs by their family custom field. OIDs within
// a family keep feed order; families are sorted for deterministic iteration.
func (c *Cache) ByFamily() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	families := make(map[string][]string)
	for _, oid := range c.order {
		family := c.vts[oid].Family()
		families[family] = append(families[family], oid)
	}
	return families
}

// Families returns the sorted list of known family names.
func (c *Cache) Families() []string {
	byFamily := c.ByFamily()
	names := make([]string, 0, len(byFamily))
	for name := range byFamily {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Load rebuilds the table from the store's cache index. Entries with a
// malformed or duplicate OID are skipped and logged; they never abort the
// bulk load. On success the table's version token is set to the store's
// current feed version and any pending flag is cleared.
func (c *Cache) Load(ctx context.Context) error {
	c.logger.Debug().Msg("loading VT table")

	entries, err := c.store.List(ctx, kb.CacheIndex, listKey)
	if err != nil {
		return fmt.Errorf("enumerate VT list: %w", err)
	}

	// filename -> oid, for dependency resolution by script name.
	byFilename := make(map[string]string, len(entries))
	type listed struct{ filename, oid string }
	var ordered []listed
	for _, entry := range entries {
		filename, oid, ok := strings.Cut(entry, kb.Separator)
		if !ok {
			c.logger.Warn().Str("entry", entry).Msg("malformed VT list entry, skipping")
			continue
		}
		byFilename[filename] = oid
		ordered = append(ordered, listed{filename: filename, oid: oid})
	}

	vts := make(map[string]*VT, len(ordered))
	var order []string

	for _, item := range ordered {
		if !ValidOID(item.oid) {
			c.logger.Info().Str("oid", item.oid).Msg("invalid OID")
			continue
		}
		if _, dup := vts[item.oid]; dup {
			c.logger.Info().Str("oid", item.oid).Msg("duplicated VT")
			continue
		}

		vt, err := c.loadVT(ctx, item.oid, byFilename)
		if err != nil {
			c.logger.Warn().Str("oid", item.oid).Err(err).Msg("failed to load VT, skipping")
			continue
		}
		vts[item.oid] = vt
		order = append(order, item.oid)
	}

	version, err := c.FeedVersion(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.vts = vts
	c.order = order
	c.version = version
	c.pending = false
	c.mu.Unlock()

	c.logger.Debug().Int("count", len(vts)).Str("version", version).Msg("VT table loaded")
	return nil
}

// loadVT reads and parses one VT definition. Typed fields are consumed out
// of the generic metadata map as they are extracted; whatever remains stays
// in Custom for display.
func (c *Cache) loadVT(ctx context.Context, oid string, byFilename map[string]string) (*VT, error) {
	meta, err := c.store.List(ctx, kb.CacheIndex, metaKey(oid))
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	custom := make(map[string]string, len(meta))
	for _, record := range meta {
		field, value, ok := strings.Cut(record, kb.Separator)
		if !ok {
			c.logger.Warn().Str("oid", oid).Str("record", record).Msg("malformed metadata record, skipping")
			continue
		}
		custom[field] = value
	}

	pop := func(field string) string {
		value := custom[field]
		delete(custom, field)
		return value
	}

	vt := &VT{
		OID:      oid,
		Name:     pop("name"),
		Created:  pop("creation_date"),
		Modified: pop("last_modification"),
		Summary:  pop("summary"),
		Impact:   pop("impact"),
		Affected: pop("affected"),
		Insight:  pop("insight"),
	}

	if solution, ok := custom["solution"]; ok {
		vt.Solution = solution
		delete(custom, "solution")
		vt.SolutionType = pop("solution_type")
	}
	vt.Detection = pop("vuldetect")
	if qodType, ok := custom["qod_type"]; ok {
		vt.QoDType = qodType
		delete(custom, "qod_type")
	} else {
		vt.QoDValue = pop("qod")
	}

	if vector, ok := custom["severity_base_vector"]; ok {
		vt.Severity.Vector = vector
		delete(custom, "severity_base_vector")
	} else {
		vt.Severity.Vector = pop("cvss_base_vector")
	}
	if severityType, ok := custom["severity_type"]; ok {
		vt.Severity.Type = severityType
		delete(custom, "severity_type")
	} else {
		vt.Severity.Type = "cvss_base_v2"
	}
	vt.Severity.Origin = pop("severity_origin")

	if deps, ok := custom["dependencies"]; ok {
		delete(custom, "dependencies")
		for _, filename := range strings.Split(deps, ", ") {
			depOID, found := byFilename[filename]
			if !found {
				c.logger.Debug().Str("oid", oid).Str("dependency", filename).Msg("unresolvable dependency, skipping")
				continue
			}
			vt.Dependencies = append(vt.Dependencies, depOID)
		}
	}

	vt.Params, err = c.loadParams(ctx, oid)
	if err != nil {
		return nil, err
	}
	vt.Refs, err = c.loadRefs(ctx, oid)
	if err != nil {
		return nil, err
	}

	vt.Custom = custom
	return vt, nil
}

func (c *Cache) loadParams(ctx context.Context, oid string) (map[string]Param, error) {
	records, err := c.store.List(ctx, kb.CacheIndex, prefsKey(oid))
	if err != nil {
		return nil, fmt.Errorf("read parameters: %w", err)
	}
	params := make(map[string]Param, len(records))
	for _, record := range records {
		fields := strings.SplitN(record, kb.Separator, 4)
		if len(fields) < 4 {
			c.logger.Warn().Str("oid", oid).Str("record", record).Msg("malformed parameter record, skipping")
			continue
		}
		params[fields[0]] = Param{
			ID:      fields[0],
			Type:    fields[1],
			Name:    fields[2],
			Default: fields[3],
		}
	}
	return params, nil
}

func (c *Cache) loadRefs(ctx context.Context, oid string) (map[string][]string, error) {
	records, err := c.store.List(ctx, kb.CacheIndex, refsKey(oid))
	if err != nil {
		return nil, fmt.Errorf("read references: %w", err)
	}
	refs := make(map[string][]string, len(records))
	for _, record := range records {
		refType, value, ok := strings.Cut(record, kb.Separator)
		if !ok || value == "" {
			c.logger.Warn().Str("oid", oid).Str("record", record).Msg("malformed reference record, skipping")
			continue
		}
		refs[refType] = append(refs[refType], value)
	}
	return refs, nil
}

// CheckFeed applies the feed reconciliation policy. With scans running a
// stale feed only sets the pending flag; with no scans running a stale or
// pending feed triggers a synchronous reload. The invariant this protects:
// an in-flight scan's VT references stay valid for its whole lifetime.
func (c *Cache) CheckFeed(ctx context.Context) error {
	running := c.active != nil && c.active() > 0

	stale := c.Pending()
	if !stale {
		var err error
		stale, err = c.IsStale(ctx)
		if err != nil {
			return err
		}
	}

	if !stale {
		return nil
	}

	if running {
		c.mu.Lock()
		first := !c.pending
		c.pending = true
		c.mu.Unlock()
		if first {
			c.logger.Debug().Msg("scan running, feed update deferred")
		}
		return nil
	}

	return c.Load(ctx)
}

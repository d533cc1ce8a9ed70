package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/orgmap/internal/detect"
	"github.com/sells-group/orgmap/internal/model"
	"github.com/sells-group/orgmap/internal/resilience"
	"github.com/sells-group/orgmap/pkg/salesforce"
)

// Assembler builds metadata bundles for tenants.
type Assembler struct {
	client   salesforce.Client
	cfg      Config
	breakers *resilience.TenantBreakers
	now      func() time.Time
}

// NewAssembler creates an Assembler. breakers may be nil, in which case
// calls are never short-circuited.
func NewAssembler(client salesforce.Client, cfg Config, breakers *resilience.TenantBreakers) *Assembler {
	return &Assembler{
		client:   client,
		cfg:      cfg.withDefaults(),
		breakers: breakers,
		now:      time.Now,
	}
}

// run carries the per-assembly call accounting.
type run struct {
	tenantID string
	cfg      Config
	breaker  *resilience.CircuitBreaker

	mu     sync.Mutex
	calls  int
	errors []string
}

// call runs one platform call under the breaker, retry policy and per-call
// timeout. It counts as a single call however many attempts it takes.
func call[T any](ctx context.Context, r *run, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	retry := r.cfg.Retry
	retry.OnRetry = resilience.RetryLogger(r.tenantID, op)
	return resilience.Execute(ctx, r.breaker, func(ctx context.Context) (T, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (T, error) {
			return resilience.WithTimeout(ctx, r.cfg.CallTimeout, op, fn)
		})
	})
}

// soft records a non-fatal failure.
func (r *run) soft(op string, err error) {
	zap.L().Warn("discovery: enrichment call failed",
		zap.String("tenant", r.tenantID),
		zap.String("operation", op),
		zap.Error(err),
	)
	r.mu.Lock()
	r.errors = append(r.errors, fmt.Sprintf("%s: %v", op, err))
	r.mu.Unlock()
}

// Assemble fetches the tenant's schema snapshot. Failure to read the object
// catalog or the primary and person describes is fatal; every other call is
// best-effort and degrades to an empty value recorded in Discovery.Errors.
func (a *Assembler) Assemble(ctx context.Context, tenantID string) (*model.MetadataBundle, error) {
	if tenantID == "" {
		return nil, eris.New("discovery: tenant id is required")
	}
	start := a.now()
	log := zap.L().With(zap.String("tenant", tenantID))

	r := &run{tenantID: tenantID, cfg: a.cfg}
	if a.breakers != nil {
		r.breaker = a.breakers.For(tenantID)
	}

	catalog, err := call(ctx, r, "describe global", a.client.DescribeGlobal)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: describe global for tenant %s", tenantID)
	}

	b := &model.MetadataBundle{
		TenantID:      tenantID,
		Objects:       objectInfos(catalog),
		PrimaryObject: a.cfg.PrimaryObject,
		PersonObject:  a.cfg.PersonObject,
		CategoryField: a.cfg.CategoryField,
		Describes:     make(map[string]model.ObjectDescribe),
	}

	for _, name := range []string{b.PrimaryObject, b.PersonObject} {
		d, err := a.describe(ctx, r, name)
		if err != nil {
			return nil, eris.Wrapf(err, "discovery: describe %s for tenant %s", name, tenantID)
		}
		b.Describes[name] = d
	}

	b.SubLedgerObject = a.subLedger(b)
	b.Packages = packages(b.Objects)
	b.CustomObjectMatches = detect.MatchCustomObjects(b.Objects, a.cfg.MaxCustomObjects)

	a.enrich(ctx, r, b)

	b.Discovery = model.DiscoveryMeta{
		Calls:    r.calls,
		Duration: a.now().Sub(start),
		Errors:   r.errors,
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrapf(err, "discovery: assemble tenant %s", tenantID)
	}

	log.Info("discovery: bundle assembled",
		zap.Int("objects", len(b.Objects)),
		zap.Int("describes", len(b.Describes)),
		zap.Int("packages", len(b.Packages)),
		zap.Int("custom_matches", len(b.CustomObjectMatches)),
		zap.Int("calls", b.Discovery.Calls),
		zap.Int("errors", len(b.Discovery.Errors)),
		zap.Duration("duration", b.Discovery.Duration),
	)
	return b, nil
}

// enrich runs the best-effort calls concurrently. Each task writes its own
// bundle field; describes and counts are collected under mu and merged into
// the bundle after every task has finished.
func (a *Assembler) enrich(ctx context.Context, r *run, b *model.MetadataBundle) {
	var mu sync.Mutex
	counts := make(map[string]int)
	describes := make(map[string]model.ObjectDescribe)

	// Read the primary describe before any task can touch the bundle.
	primary := b.Describe(b.PrimaryObject)
	withRecordTypes := hasRecordTypes(primary)
	withCategory := primary.Field(b.CategoryField) != nil
	withHierarchy := primary.Field("ParentId").References(b.PrimaryObject)
	described := a.describeTargets(b)
	counted := countTargets(b)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)

	for _, name := range described {
		g.Go(func() error {
			d, err := a.describe(gctx, r, name)
			if err != nil {
				r.soft("describe "+name, err)
				return nil
			}
			mu.Lock()
			describes[name] = d
			mu.Unlock()
			return nil
		})
	}

	for _, name := range counted {
		g.Go(func() error {
			n, err := call(gctx, r, "count "+name, func(ctx context.Context) (int, error) {
				return a.client.QueryCount(ctx, recordCountQuery(name))
			})
			if err != nil {
				r.soft("count "+name, err)
				return nil
			}
			mu.Lock()
			counts[name] = n
			mu.Unlock()
			return nil
		})
	}

	g.Go(func() error {
		b.Automation = a.automation(gctx, r)
		return nil
	})

	if withRecordTypes {
		g.Go(func() error {
			b.RecordTypeCounts = a.recordTypeCounts(gctx, r, b.PrimaryObject)
			return nil
		})
	}
	if withCategory {
		g.Go(func() error {
			b.SampledCategoryValues = a.sampleCategory(gctx, r, b.PrimaryObject, b.CategoryField)
			return nil
		})
	}
	if withHierarchy {
		g.Go(func() error {
			n, err := call(gctx, r, "hierarchy "+b.PrimaryObject, func(ctx context.Context) (int, error) {
				return a.client.QueryCount(ctx, hierarchyQuery(b.PrimaryObject))
			})
			if err != nil {
				r.soft("hierarchy "+b.PrimaryObject, err)
				return nil
			}
			b.UsesHierarchy = n > 0
			return nil
		})
	}

	_ = g.Wait() // tasks never return errors
	for name, d := range describes {
		b.Describes[name] = d
	}
	if len(counts) > 0 {
		b.RecordCounts = counts
	}
}

func (a *Assembler) describe(ctx context.Context, r *run, name string) (model.ObjectDescribe, error) {
	desc, err := call(ctx, r, "describe "+name, func(ctx context.Context) (*salesforce.SObjectDescription, error) {
		return a.client.DescribeSObject(ctx, name)
	})
	if err != nil {
		return model.ObjectDescribe{}, err
	}
	return model.FromSObjectDescription(desc), nil
}

// subLedger returns the first configured sub-ledger object the tenant has.
func (a *Assembler) subLedger(b *model.MetadataBundle) string {
	for _, name := range a.cfg.SubLedgerObjects {
		if b.HasObject(name) {
			return name
		}
	}
	return ""
}

// describeTargets lists the optional objects to describe: the sub-ledger,
// the standard junction, then keyword-matched custom objects and package
// objects up to MaxCustomObjects.
func (a *Assembler) describeTargets(b *model.MetadataBundle) []string {
	seen := map[string]bool{b.PrimaryObject: true, b.PersonObject: true}
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	add(b.SubLedgerObject)
	if b.HasObject(detect.StandardJunction) {
		add(detect.StandardJunction)
	}

	var optional []string
	for _, m := range b.CustomObjectMatches {
		optional = append(optional, m.Name)
	}
	for _, pkg := range b.Packages {
		optional = append(optional, pkg.Objects...)
	}
	budget := len(out) + a.cfg.MaxCustomObjects
	for _, name := range optional {
		if a.cfg.MaxCustomObjects > 0 && len(out) >= budget {
			break
		}
		add(name)
	}
	return out
}

// activityObjects are standard objects whose presence of records drives the
// compliance and pipeline detectors.
var activityObjects = []string{"Task", "Opportunity", "Lead"}

// countTargets lists the objects whose record counts the detectors read.
func countTargets(b *model.MetadataBundle) []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range []string{b.PrimaryObject, b.PersonObject, b.SubLedgerObject} {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, name := range activityObjects {
		if b.HasObject(name) && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, m := range b.CustomObjectMatches {
		if !seen[m.Name] {
			seen[m.Name] = true
			out = append(out, m.Name)
		}
	}
	return out
}

func objectInfos(catalog []salesforce.SObjectSummary) []model.ObjectInfo {
	out := make([]model.ObjectInfo, 0, len(catalog))
	for _, s := range catalog {
		out = append(out, model.ObjectInfo{
			Name:      s.Name,
			Label:     s.Label,
			Custom:    s.Custom,
			Queryable: s.Queryable,
		})
	}
	return out
}

// packages groups namespaced custom objects by their prefix.
func packages(objects []model.ObjectInfo) []model.InstalledPackage {
	byPrefix := make(map[string][]string)
	for _, o := range objects {
		if !o.Custom {
			continue
		}
		if prefix := detect.NamespacePrefix(o.Name); prefix != "" {
			byPrefix[prefix] = append(byPrefix[prefix], o.Name)
		}
	}
	out := make([]model.InstalledPackage, 0, len(byPrefix))
	for prefix, objs := range byPrefix {
		sort.Strings(objs)
		out = append(out, model.InstalledPackage{
			Prefix:  prefix,
			Name:    knownPackages[prefix],
			Objects: objs,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out
}

func hasRecordTypes(d *model.ObjectDescribe) bool {
	if d == nil {
		return false
	}
	for _, rt := range d.RecordTypes {
		if !rt.Master {
			return true
		}
	}
	return false
}

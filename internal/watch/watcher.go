package watch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/obentoo/nightwatch/internal/common/config"
	"github.com/obentoo/nightwatch/internal/common/logger"
	"github.com/obentoo/nightwatch/internal/common/packagist"
	"github.com/obentoo/nightwatch/internal/composer"
)

// Status is the outcome recorded for one required package
type Status string

const (
	// StatusSkipped means no update was needed or possible
	StatusSkipped Status = "skipped"
	// StatusTriggered means the update trigger completed
	StatusTriggered Status = "update-triggered"
	// StatusFailed means the update trigger returned an error
	StatusFailed Status = "update-failed"
	// StatusWouldUpdate means an update qualified during a dry run
	StatusWouldUpdate Status = "would-update"
)

// Source reads a project's Composer manifests from source control
type Source interface {
	RequiredPackages(ctx context.Context) (*composer.Manifest, error)
	LockedPackages(ctx context.Context) ([]composer.LockedPackage, error)
}

// Registry looks up the latest stable release of a package
type Registry interface {
	LatestVersion(ctx context.Context, name string) (string, error)
}

// Dispatcher starts an update of one package in one project
type Dispatcher interface {
	Trigger(ctx context.Context, runtimeTag, pkg, version string) error
}

// ResourceManager owns resources shared by every update of a run
type ResourceManager interface {
	CleanUp() error
}

// ProjectFactory connects to a project's source-control host
type ProjectFactory func(p config.Project) (Source, Dispatcher, error)

// Result describes what happened to one required package
type Result struct {
	Package    string
	Constraint string
	Locked     string
	Latest     string
	Status     Status
	Reason     string
	Err        error
}

// ProjectReport collects the results for one project.
// Err is set when the project could not be checked at all.
type ProjectReport struct {
	Project config.Project
	Runtime string
	Results []Result
	Err     error
}

// Count returns the number of results with the given status
func (p *ProjectReport) Count(status Status) int {
	n := 0
	for _, r := range p.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Report is the outcome of a whole run
type Report struct {
	Projects []ProjectReport
	// CleanUpErr holds the resource manager's cleanup error, if any
	CleanUpErr error
}

// Count returns the number of results with the given status across projects
func (r *Report) Count(status Status) int {
	n := 0
	for i := range r.Projects {
		n += r.Projects[i].Count(status)
	}
	return n
}

// Failed returns the number of projects that could not be checked
func (r *Report) Failed() int {
	n := 0
	for _, p := range r.Projects {
		if p.Err != nil {
			n++
		}
	}
	return n
}

// Watcher runs the dependency check over every configured project
type Watcher struct {
	cfg       *config.Config
	registry  Registry
	resources ResourceManager
	factory   ProjectFactory
	dryRun    bool
	only      []string
	log       *logger.Logger
}

// Option is a functional option for configuring Watcher
type Option func(*Watcher)

// WithDryRun makes the watcher decide and report without triggering updates
func WithDryRun(dryRun bool) Option {
	return func(w *Watcher) {
		w.dryRun = dryRun
	}
}

// WithProjects restricts the run to projects whose label matches one of names
func WithProjects(names ...string) Option {
	return func(w *Watcher) {
		w.only = append(w.only, names...)
	}
}

// WithLogger sets the logger used for progress and skip messages
func WithLogger(l *logger.Logger) Option {
	return func(w *Watcher) {
		w.log = l
	}
}

// NewWatcher creates a watcher. resources is cleaned up by Run.
func NewWatcher(cfg *config.Config, registry Registry, resources ResourceManager, factory ProjectFactory, opts ...Option) *Watcher {
	w := &Watcher{
		cfg:       cfg,
		registry:  registry,
		resources: resources,
		factory:   factory,
		log:       logger.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run checks every selected project in configuration order and cleans up the
// resource manager exactly once before returning, however the run ends.
// Per-package and per-project failures are recorded in the report and never
// stop the iteration; cancelling ctx stops it between packages.
func (w *Watcher) Run(ctx context.Context) *Report {
	report := &Report{}
	defer func() {
		if err := w.resources.CleanUp(); err != nil {
			report.CleanUpErr = err
			w.log.Warn("cleanup failed: %v", err)
		}
	}()

	for _, p := range w.selectProjects() {
		if ctx.Err() != nil {
			w.log.Warn("run interrupted: %v", ctx.Err())
			break
		}
		report.Projects = append(report.Projects, w.checkProject(ctx, p))
	}
	return report
}

// selectProjects applies the project filter, warning about unknown names
func (w *Watcher) selectProjects() []config.Project {
	if len(w.only) == 0 {
		return w.cfg.Projects
	}

	wanted := make(map[string]bool, len(w.only))
	for _, name := range w.only {
		wanted[name] = false
	}

	var selected []config.Project
	for _, p := range w.cfg.Projects {
		if _, ok := wanted[p.Label()]; ok {
			wanted[p.Label()] = true
			selected = append(selected, p)
		}
	}
	for _, name := range w.only {
		if !wanted[name] {
			w.log.Warn("no configured project named %q", name)
		}
	}
	return selected
}

// checkProject fetches the manifests once and checks every required package
func (w *Watcher) checkProject(ctx context.Context, p config.Project) ProjectReport {
	pr := ProjectReport{Project: p, Runtime: w.cfg.RuntimeFor(p)}

	skip := func(err error) ProjectReport {
		pr.Err = err
		w.log.Warn("skipping %s: %v", p.Label(), err)
		return pr
	}

	if err := p.Validate(); err != nil {
		return skip(err)
	}

	source, dispatcher, err := w.factory(p)
	if err != nil {
		return skip(fmt.Errorf("connecting: %w", err))
	}

	manifest, err := source.RequiredPackages(ctx)
	if err != nil {
		return skip(fmt.Errorf("reading %s: %w", composer.ManifestFile, err))
	}
	locked, err := source.LockedPackages(ctx)
	if err != nil {
		return skip(fmt.Errorf("reading %s: %w", composer.LockFile, err))
	}

	reqs := SortedRequirements(manifest)
	w.log.Debug("%s: %d required packages, %d locked", p.Label(), len(reqs), len(locked))

	for _, req := range reqs {
		if ctx.Err() != nil {
			break
		}
		pr.Results = append(pr.Results, w.checkPackage(ctx, p.Label(), pr.Runtime, req, locked, dispatcher))
	}
	return pr
}

// checkPackage decides and, when warranted, dispatches the update of one package
func (w *Watcher) checkPackage(ctx context.Context, label, runtime string, req Requirement, locked []composer.LockedPackage, dispatcher Dispatcher) Result {
	res := Result{Package: req.Name, Constraint: req.Constraint, Status: StatusSkipped}

	if composer.IsPlatformPackage(req.Name) {
		res.Reason = ReasonPlatform
		return res
	}

	lockedVersion, ok := composer.FindVersion(locked, req.Name)
	if !ok {
		res.Reason = ReasonNotLocked
		w.log.Debug("%s: %s skipped: %s", label, req.Name, res.Reason)
		return res
	}
	res.Locked = lockedVersion

	latest, err := w.registry.LatestVersion(ctx, req.Name)
	if err != nil {
		res.Reason = ReasonUnknownLatest
		res.Err = err
		if errors.Is(err, packagist.ErrPackageNotFound) || errors.Is(err, packagist.ErrNoStableVersion) {
			w.log.Debug("%s: %s skipped: %v", label, req.Name, err)
		} else {
			w.log.Warn("%s: %s skipped: registry lookup failed: %v", label, req.Name, err)
		}
		return res
	}
	res.Latest = latest

	decision := Decide(req.Constraint, lockedVersion, latest)
	res.Reason = decision.Reason
	if !decision.Update {
		w.log.Debug("%s: %s %s (%s, latest %s) skipped: %s", label, req.Name, lockedVersion, req.Constraint, latest, res.Reason)
		return res
	}

	if w.dryRun {
		res.Status = StatusWouldUpdate
		w.log.Info("%s: %s %s -> %s (dry run)", label, req.Name, lockedVersion, latest)
		return res
	}

	w.log.Info("%s: updating %s %s -> %s with %s", label, req.Name, lockedVersion, latest, runtime)
	if err := dispatcher.Trigger(ctx, runtime, req.Name, latest); err != nil {
		res.Status = StatusFailed
		res.Err = err
		w.log.Warn("%s: update of %s failed: %s", label, req.Name, firstLine(err.Error()))
		return res
	}
	res.Status = StatusTriggered
	return res
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

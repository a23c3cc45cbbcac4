// Package update implements the update trigger: it bumps one Composer package
// inside a tool container and proposes the result as a GitLab merge request.
package update

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/obentoo/nightwatch/internal/common/git"
	"github.com/obentoo/nightwatch/internal/common/gitlab"
	"github.com/obentoo/nightwatch/internal/common/logger"
	"github.com/obentoo/nightwatch/internal/composer"
	"github.com/obentoo/nightwatch/internal/container"
)

var (
	// ErrNoChanges is returned when composer left the lock file untouched
	ErrNoChanges = errors.New("composer update produced no changes")
	// ErrInvalidTarget is returned for an empty package, version or runtime tag
	ErrInvalidTarget = errors.New("invalid update target")
)

// BranchPrefix namespaces every branch pushed by the updater
const BranchPrefix = "nightwatch/"

// composerHome keeps composer's cache inside the throwaway container
const composerHome = "/tmp/composer"

// Containers is the subset of the container manager used by the updater
type Containers interface {
	Workspace(prefix string) (string, error)
	Run(ctx context.Context, opts container.RunOptions) (string, error)
}

// Host is the source-control side of an update
type Host interface {
	CloneURL(ctx context.Context) (string, error)
	ResolveRef(ctx context.Context) (string, error)
	CreateMergeRequest(ctx context.Context, opts gitlab.MergeRequestOptions) (*gitlab.MergeRequest, error)
}

// Author is the identity recorded on update commits
type Author struct {
	Name  string
	Email string
}

// Updater triggers updates for a single project
type Updater struct {
	host       Host
	containers Containers
	author     Author
	label      string
	newGit     func(workDir string) git.GitExecutor
	log        *logger.Logger
}

// Option configures an Updater
type Option func(*Updater)

// WithGitFactory replaces the git runner constructor (useful for testing)
func WithGitFactory(fn func(workDir string) git.GitExecutor) Option {
	return func(u *Updater) {
		u.newGit = fn
	}
}

// WithLogger sets the logger used for progress messages
func WithLogger(l *logger.Logger) Option {
	return func(u *Updater) {
		u.log = l
	}
}

// WithLabel sets the project label used in workspace names and log lines
func WithLabel(label string) Option {
	return func(u *Updater) {
		u.label = label
	}
}

// NewUpdater creates an updater for the project behind host
func NewUpdater(host Host, containers Containers, author Author, opts ...Option) *Updater {
	u := &Updater{
		host:       host,
		containers: containers,
		author:     author,
		label:      "project",
		newGit: func(workDir string) git.GitExecutor {
			return git.NewGitRunner(workDir)
		},
		log: logger.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

var (
	unsafeBranchChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	repeatedDots      = regexp.MustCompile(`\.{2,}`)
)

// BranchName returns the branch used for updating pkg to version,
// e.g. "nightwatch/psr-log-1.1.0" for psr/log 1.1.0.
func BranchName(pkg, version string) string {
	name := unsafeBranchChars.ReplaceAllString(strings.ToLower(pkg), "-")
	ver := unsafeBranchChars.ReplaceAllString(strings.TrimPrefix(version, "v"), "-")
	branch := strings.Trim(name, "-.") + "-" + strings.Trim(ver, "-.")
	// git refuses ".." and a trailing ".lock" in ref names
	branch = repeatedDots.ReplaceAllString(branch, ".")
	branch = strings.TrimSuffix(branch, ".lock")
	return BranchPrefix + branch
}

// CommitMessage returns the commit and merge request title for an update
func CommitMessage(pkg, version string) string {
	return fmt.Sprintf("Update %s to %s", pkg, version)
}

// ComposerArgs returns the composer command line run inside the container
func ComposerArgs(pkg string) []string {
	return []string{
		"update", pkg,
		"--with-dependencies",
		"--no-interaction",
		"--no-scripts",
		"--ignore-platform-reqs",
	}
}

// Trigger updates pkg to version using the runtimeTag image and opens a
// merge request against the project's ref. An already open merge request for
// the same branch counts as success.
func (u *Updater) Trigger(ctx context.Context, runtimeTag, pkg, version string) error {
	if runtimeTag == "" || pkg == "" || version == "" {
		return fmt.Errorf("%w: runtime=%q package=%q version=%q", ErrInvalidTarget, runtimeTag, pkg, version)
	}

	ref, err := u.host.ResolveRef(ctx)
	if err != nil {
		return err
	}
	cloneURL, err := u.host.CloneURL(ctx)
	if err != nil {
		return err
	}

	dir, err := u.containers.Workspace(u.label)
	if err != nil {
		return err
	}

	branch := BranchName(pkg, version)
	repo := u.newGit(dir)

	if err := repo.Clone(ctx, cloneURL, ref); err != nil {
		return fmt.Errorf("cloning %s: %w", u.label, err)
	}
	if err := repo.CheckoutNewBranch(ctx, branch); err != nil {
		return err
	}

	u.log.Debug("%s: running composer %s in %s", u.label, strings.Join(ComposerArgs(pkg), " "), runtimeTag)
	out, err := u.containers.Run(ctx, container.RunOptions{
		Image:   runtimeTag,
		WorkDir: dir,
		Args:    ComposerArgs(pkg),
		Env:     []string{"COMPOSER_HOME=" + composerHome},
	})
	if err != nil {
		u.log.Debug("%s: composer output:\n%s", u.label, strings.TrimSpace(out))
		return err
	}

	entries, err := repo.Status(ctx)
	if err != nil {
		return err
	}
	if !git.HasChanges(entries, composer.LockFile) {
		return ErrNoChanges
	}

	u.checkLockedVersion(dir, pkg, version)

	paths := []string{composer.LockFile}
	if git.HasChanges(entries, composer.ManifestFile) {
		paths = append(paths, composer.ManifestFile)
	}
	if err := repo.Add(ctx, paths...); err != nil {
		return err
	}

	message := CommitMessage(pkg, version)
	if err := repo.Commit(ctx, message, u.author.Name, u.author.Email); err != nil {
		return err
	}
	if err := repo.Push(ctx, "origin", branch); err != nil {
		return err
	}

	mr, err := u.host.CreateMergeRequest(ctx, gitlab.MergeRequestOptions{
		SourceBranch:       branch,
		TargetBranch:       ref,
		Title:              message,
		Description:        fmt.Sprintf("Updates `%s` to `%s` with `composer %s`.", pkg, version, strings.Join(ComposerArgs(pkg), " ")),
		RemoveSourceBranch: true,
	})
	if errors.Is(err, gitlab.ErrMergeRequestExists) {
		u.log.Info("%s: merge request for %s already open", u.label, branch)
		return nil
	}
	if err != nil {
		return err
	}

	u.log.Info("%s: opened merge request !%d %s", u.label, mr.IID, mr.WebURL)
	return nil
}

// checkLockedVersion warns when composer resolved a different version than requested
func (u *Updater) checkLockedVersion(dir, pkg, version string) {
	data, err := os.ReadFile(filepath.Join(dir, composer.LockFile))
	if err != nil {
		return
	}
	lock, err := composer.ParseLock(data)
	if err != nil {
		u.log.Warn("%s: updated lock file does not parse: %v", u.label, err)
		return
	}
	if got, ok := composer.FindVersion(lock.All(), pkg); ok && strings.TrimPrefix(got, "v") != strings.TrimPrefix(version, "v") {
		u.log.Warn("%s: composer locked %s at %s, expected %s", u.label, pkg, got, version)
	}
}

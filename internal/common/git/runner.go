package git

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

var (
	ErrGitCommand    = errors.New("git command failed")
	ErrInvalidBranch = errors.New("invalid branch name")
)

// GitRunner executes git commands in a specific working directory
type GitRunner struct {
	workDir string
}

// NewGitRunner creates a new GitRunner for the specified working directory
func NewGitRunner(workDir string) *GitRunner {
	return &GitRunner{
		workDir: workDir,
	}
}

// WorkDir returns the working directory of the GitRunner
func (g *GitRunner) WorkDir() string {
	return g.workDir
}

// runCommand executes a git command and returns stdout, stderr, and any error
func (g *GitRunner) runCommand(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.workDir
	// Never block on a credential prompt
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if err != nil {
		if stderr != "" {
			err = errors.Join(ErrGitCommand, errors.New(strings.TrimSpace(stderr)))
		} else {
			err = errors.Join(ErrGitCommand, err)
		}
	}

	return stdout, stderr, err
}

// Clone clones url into the working directory, which must be empty or absent.
// A non-empty branch is checked out instead of the remote HEAD.
func (g *GitRunner) Clone(ctx context.Context, url, branch string) error {
	args := []string{"clone", "--quiet"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	_, _, err := g.runCommand(ctx, append(args, url, ".")...)
	return err
}

// CheckoutNewBranch creates and switches to branch
func (g *GitRunner) CheckoutNewBranch(ctx context.Context, branch string) error {
	if branch == "" || strings.HasPrefix(branch, "-") || strings.ContainsAny(branch, " ~^:?*[\\") {
		return ErrInvalidBranch
	}
	_, _, err := g.runCommand(ctx, "checkout", "-b", branch)
	return err
}

// StatusEntry represents a single entry from git status --porcelain
type StatusEntry struct {
	Status   string // A, M, D, R, ??
	FilePath string
}

// Status returns the current git status as a list of StatusEntry
func (g *GitRunner) Status(ctx context.Context) ([]StatusEntry, error) {
	stdout, _, err := g.runCommand(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}

	return ParseStatusOutput(stdout), nil
}

// ParseStatusOutput parses git status --porcelain output into StatusEntry slice
func ParseStatusOutput(output string) []StatusEntry {
	var entries []StatusEntry

	for _, line := range strings.Split(output, "\n") {
		if len(line) < 3 {
			continue
		}

		// XY filename, X = index status, Y = worktree status
		status := strings.TrimSpace(line[:2])
		filePath := line[3:]

		// R  old -> new
		if strings.HasPrefix(status, "R") {
			if parts := strings.Split(filePath, " -> "); len(parts) == 2 {
				filePath = parts[1]
			}
		}

		entries = append(entries, StatusEntry{
			Status:   status,
			FilePath: filePath,
		})
	}

	return entries
}

// HasChanges reports whether any of paths appears in entries
func HasChanges(entries []StatusEntry, paths ...string) bool {
	for _, e := range entries {
		for _, p := range paths {
			if e.FilePath == p {
				return true
			}
		}
	}
	return false
}

// Add stages files for commit; with no paths every change is staged
func (g *GitRunner) Add(ctx context.Context, paths ...string) error {
	args := []string{"add", "--"}
	if len(paths) == 0 {
		args = append(args, ".")
	} else {
		args = append(args, paths...)
	}
	_, _, err := g.runCommand(ctx, args...)
	return err
}

// Commit creates a git commit with the specified message and author
func (g *GitRunner) Commit(ctx context.Context, message, user, email string) error {
	args := []string{"commit", "-m", message}

	if user != "" && email != "" {
		// Committer identity is required in fresh containers without a gitconfig
		args = append([]string{"-c", "user.name=" + user, "-c", "user.email=" + email}, args...)
		args = append(args, "--author", user+" <"+email+">")
	}

	_, _, err := g.runCommand(ctx, args...)
	return err
}

// Push force-pushes branch to remote and sets it as upstream.
// Only branches owned by nightwatch are pushed, so overwriting is expected.
func (g *GitRunner) Push(ctx context.Context, remote, branch string) error {
	_, _, err := g.runCommand(ctx, "push", "--quiet", "--force", "-u", remote, branch)
	return err
}

// Ensure GitRunner implements GitExecutor interface
var _ GitExecutor = (*GitRunner)(nil)

package git

import "context"

// GitExecutor defines the git operations the updater performs on a working copy.
// This interface allows for mocking git operations in tests.
type GitExecutor interface {
	// Clone clones url into the working directory and checks out branch
	Clone(ctx context.Context, url, branch string) error

	// CheckoutNewBranch creates and switches to a branch
	CheckoutNewBranch(ctx context.Context, branch string) error

	// Status returns the current git status as a list of StatusEntry
	Status(ctx context.Context) ([]StatusEntry, error)

	// Add stages files for commit
	Add(ctx context.Context, paths ...string) error

	// Commit creates a git commit with the specified message and author
	Commit(ctx context.Context, message, user, email string) error

	// Push force-pushes a branch to a remote and sets it as upstream
	Push(ctx context.Context, remote, branch string) error

	// WorkDir returns the working directory of the git repository
	WorkDir() string
}

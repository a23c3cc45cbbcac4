package git

import "context"

// MockGitRunner implements GitExecutor for testing.
// Each method can be configured with a custom function to control behavior.
type MockGitRunner struct {
	CloneFunc             func(url, branch string) error
	CheckoutNewBranchFunc func(branch string) error
	StatusFunc            func() ([]StatusEntry, error)
	AddFunc               func(paths ...string) error
	CommitFunc            func(message, user, email string) error
	PushFunc              func(remote, branch string) error
	// Calls records invoked method names in order
	Calls   []string
	workDir string
}

// NewMockGitRunner creates a new MockGitRunner with the specified working directory
func NewMockGitRunner(workDir string) *MockGitRunner {
	return &MockGitRunner{
		workDir: workDir,
	}
}

// Clone clones url into the working directory
func (m *MockGitRunner) Clone(ctx context.Context, url, branch string) error {
	m.Calls = append(m.Calls, "clone")
	if m.CloneFunc != nil {
		return m.CloneFunc(url, branch)
	}
	return nil
}

// CheckoutNewBranch creates and switches to a branch
func (m *MockGitRunner) CheckoutNewBranch(ctx context.Context, branch string) error {
	m.Calls = append(m.Calls, "checkout")
	if m.CheckoutNewBranchFunc != nil {
		return m.CheckoutNewBranchFunc(branch)
	}
	return nil
}

// Status returns the current git status as a list of StatusEntry
func (m *MockGitRunner) Status(ctx context.Context) ([]StatusEntry, error) {
	m.Calls = append(m.Calls, "status")
	if m.StatusFunc != nil {
		return m.StatusFunc()
	}
	return nil, nil
}

// Add stages files for commit
func (m *MockGitRunner) Add(ctx context.Context, paths ...string) error {
	m.Calls = append(m.Calls, "add")
	if m.AddFunc != nil {
		return m.AddFunc(paths...)
	}
	return nil
}

// Commit creates a git commit with the specified message and author
func (m *MockGitRunner) Commit(ctx context.Context, message, user, email string) error {
	m.Calls = append(m.Calls, "commit")
	if m.CommitFunc != nil {
		return m.CommitFunc(message, user, email)
	}
	return nil
}

// Push pushes a branch to a remote
func (m *MockGitRunner) Push(ctx context.Context, remote, branch string) error {
	m.Calls = append(m.Calls, "push")
	if m.PushFunc != nil {
		return m.PushFunc(remote, branch)
	}
	return nil
}

// WorkDir returns the working directory of the git repository
func (m *MockGitRunner) WorkDir() string {
	return m.workDir
}

// Ensure MockGitRunner implements GitExecutor interface
var _ GitExecutor = (*MockGitRunner)(nil)

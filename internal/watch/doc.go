// Package watch implements the nightly dependency check.
//
// For every configured project the watcher reads the Composer requirement
// groups and the lock file once, asks the registry for the latest stable
// release of each required package, and triggers an update when that release
// both satisfies the declared constraint and is newer than the locked version.
//
// Failures are contained where they happen: a registry error skips one
// package, a source-control error skips one project, and the shared resource
// manager is cleaned up exactly once when Run returns.
//
// Usage:
//
//	w := watch.NewWatcher(cfg, registry, containers, factory)
//	report := w.Run(ctx)
//	for _, p := range report.Projects {
//	    fmt.Println(p.Project.Label(), len(p.Results))
//	}
package watch

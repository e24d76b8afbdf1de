package release

import (
	"fmt"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/changes"
)

// ShouldBuild decides whether a change set warrants a release: more than
// minChanges changed files, or changes spanning more than one top-level
// directory. The returned reason is suitable for logging.
func ShouldBuild(cs *changes.ChangeSet, minChanges int) (bool, string) {
	if cs.IsEmpty() {
		return false, "no changes"
	}
	if n := cs.Len(); n > minChanges {
		return true, fmt.Sprintf("%d files changed (>%d)", n, minChanges)
	}
	if dirs := cs.TopLevelDirs(); len(dirs) > 1 {
		return true, fmt.Sprintf("multi-module change (%d top-level directories)", len(dirs))
	}
	return false, "changes below threshold"
}

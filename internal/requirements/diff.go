package requirements

import (
	"fmt"
	"strings"
)

// Action is what the diff decided for one desired package.
type Action string

const (
	ActionInstall      Action = "install"
	ActionUpgrade      Action = "upgrade"
	ActionKeepNewer    Action = "keep-newer"
	ActionKeepEqual    Action = "keep-equal"
	ActionSkipSource   Action = "skip-source"
	ActionSkipLegacy   Action = "skip-legacy"
	ActionSkipUnparsed Action = "skip-unparsed"
)

// Decision records the diff outcome for a single package.
type Decision struct {
	Name    string
	Desired string
	Current string
	Action  Action
}

// Warning reports whether the decision left a possible conflict unresolved.
func (d Decision) Warning() bool {
	switch d.Action {
	case ActionSkipSource, ActionSkipLegacy, ActionSkipUnparsed:
		return true
	}
	return false
}

func (d Decision) Message() string {
	switch d.Action {
	case ActionInstall:
		return fmt.Sprintf("package not found, installing %s package with version %s", d.Name, d.Desired)
	case ActionUpgrade:
		return fmt.Sprintf("updating %s package from version %s to %s", d.Name, d.Current, d.Desired)
	case ActionKeepNewer:
		return fmt.Sprintf("newer %s package with version %s already installed, skipping", d.Name, d.Current)
	case ActionKeepEqual:
		return fmt.Sprintf("%s package with version %s already installed", d.Name, d.Current)
	case ActionSkipSource:
		return fmt.Sprintf("source package %s found already installed from %s, this may conflict with the required version %s, skipping", d.Name, d.Current, d.Desired)
	case ActionSkipLegacy:
		return fmt.Sprintf("package %s found with unsupported legacy version scheme %s already installed, skipping", d.Name, d.Current)
	default:
		return fmt.Sprintf("required version %s of package %s cannot be compared with installed %s, skipping", d.Desired, d.Name, d.Current)
	}
}

// Diff decides, for every desired package, whether it has to be installed. The install list is
// returned as name==version specifiers in desired-manifest order. Diff has no side effects.
func Diff(desired, current *Manifest) ([]string, []Decision) {
	var install []string
	decisions := make([]Decision, 0, desired.Len())
	for _, req := range desired.Requirements() {
		d := decide(req, current)
		decisions = append(decisions, d)
		if d.Action == ActionInstall || d.Action == ActionUpgrade {
			install = append(install, req.String())
		}
	}
	return install, decisions
}

func decide(req Requirement, current *Manifest) Decision {
	d := Decision{Name: req.Name, Desired: req.Version}
	cur, ok := current.Get(req.Name)
	if !ok {
		d.Action = ActionInstall
		return d
	}
	d.Current = cur
	if IsSourceReference(cur) {
		d.Action = ActionSkipSource
		return d
	}
	cv, ok := ParseVersion(cur)
	if !ok {
		d.Action = ActionSkipLegacy
		return d
	}
	dv, ok := ParseVersion(req.Version)
	if !ok {
		d.Action = ActionSkipUnparsed
		return d
	}
	switch c := dv.Compare(cv); {
	case c > 0:
		d.Action = ActionUpgrade
	case c < 0:
		d.Action = ActionKeepNewer
	default:
		d.Action = ActionKeepEqual
	}
	return d
}

// IsSourceReference reports whether an installed version is a direct reference rather than a release.
func IsSourceReference(v string) bool {
	return strings.Contains(v, "git+") || strings.Contains(v, "://") || strings.HasPrefix(v, "file:")
}

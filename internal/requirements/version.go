package requirements

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// pep440 accepts the public version forms pip understands, including the spellings
// normalised by PEP 440 (alpha, preview, rev, 1.0-1, ...). The local label is ignored.
var pep440 = regexp.MustCompile(`^v?` +
	`(?:(\d+)!)?` +
	`(\d+(?:\.\d+)*)` +
	`(?:[-_.]?(a|b|c|rc|alpha|beta|pre|preview)[-_.]?(\d+)?)?` +
	`(?:-(\d+)|[-_.]?(post|rev|r)[-_.]?(\d+)?)?` +
	`(?:[-_.]?(dev)[-_.]?(\d+)?)?` +
	`(?:\+[a-z0-9]+(?:[-_.][a-z0-9]+)*)?$`)

// Version is a parsed release version.
type Version struct {
	epoch   int
	release []int
	// qualifier orders pre, post and dev segments of versions sharing a release.
	qualifier string
}

// ParseVersion parses v as a PEP 440 version.
func ParseVersion(v string) (Version, bool) {
	m := pep440.FindStringSubmatch(strings.ToLower(strings.TrimSpace(v)))
	if m == nil {
		return Version{}, false
	}
	var ver Version
	if m[1] != "" {
		e, err := strconv.Atoi(m[1])
		if err != nil {
			return Version{}, false
		}
		ver.epoch = e
	}
	for _, part := range strings.Split(m[2], ".") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, false
		}
		ver.release = append(ver.release, n)
	}
	for len(ver.release) > 1 && ver.release[len(ver.release)-1] == 0 {
		ver.release = ver.release[:len(ver.release)-1]
	}

	pre := ""
	if m[3] != "" {
		pre = preLabel(m[3]) + "." + number(m[4])
	}
	post := ""
	switch {
	case m[5] != "":
		post = number(m[5])
	case m[6] != "":
		post = number(m[7])
	}
	dev := ""
	if m[8] != "" {
		dev = number(m[9])
	}
	ver.qualifier = qualifier(pre, post, dev)
	if !semver.IsValid(ver.qualifier) {
		return Version{}, false
	}
	return ver, true
}

func preLabel(s string) string {
	switch s {
	case "alpha":
		return "a"
	case "beta":
		return "b"
	case "c", "pre", "preview":
		return "rc"
	}
	return s
}

// number drops leading zeros; an omitted number is 0.
func number(s string) string {
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "0"
	}
	return s
}

// qualifier encodes the segments after the release as a semver string with the PEP 440
// order: X.devN < X.aN.devM < X.aN < X.aN.postM.devK < X.aN.postM < X < X.postN.devM < X.postN.
func qualifier(pre, post, dev string) string {
	patch := "0"
	var ids []string
	switch {
	case pre != "":
		ids = append(ids, pre)
		if post != "" {
			ids = append(ids, "2", post)
		}
		if dev != "" {
			ids = append(ids, "0", dev)
		} else {
			ids = append(ids, "1")
		}
	case post != "":
		n, _ := strconv.Atoi(post)
		patch = strconv.Itoa(n + 1)
		if dev != "" {
			ids = append(ids, "0dev", dev)
		}
	case dev != "":
		// "0dev" sorts before the a, b and rc labels
		ids = append(ids, "0dev", dev)
	}
	q := "v0.0." + patch
	if len(ids) > 0 {
		q += "-" + strings.Join(ids, ".")
	}
	return q
}

// Compare returns -1, 0 or 1 as v is older than, equal to or newer than w.
func (v Version) Compare(w Version) int {
	if v.epoch != w.epoch {
		return cmpInt(v.epoch, w.epoch)
	}
	for i := 0; i < len(v.release) || i < len(w.release); i++ {
		var a, b int
		if i < len(v.release) {
			a = v.release[i]
		}
		if i < len(w.release) {
			b = w.release[i]
		}
		if a != b {
			return cmpInt(a, b)
		}
	}
	return semver.Compare(v.qualifier, w.qualifier)
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	return 1
}

// history.go reads tags, commit ranges and diffs for changelogs and PRs.
package git

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Commit is one entry of a commit range.
type Commit struct {
	Hash    string
	Subject string
	Body    string
}

// Tags lists tags, newest version first.
// Shells out to: git tag --sort=-v:refname
func (r *Repo) Tags(ctx context.Context) ([]string, error) {
	out, err := r.output(ctx, nil, "tag", "--sort=-v:refname")
	if err != nil {
		return nil, err
	}
	return lines(out), nil
}

// LatestTag returns the most recent tag reachable from HEAD, or ErrNoTags.
// Shells out to: git describe --tags --abbrev=0
func (r *Repo) LatestTag(ctx context.Context) (string, error) {
	tag, err := r.run(ctx, "describe", "--tags", "--abbrev=0")
	if err != nil || tag == "" {
		return "", ErrNoTags
	}
	return tag, nil
}

// RecentSubjects returns up to n subjects of the newest commits on HEAD,
// newest first. An unborn branch has none.
func (r *Repo) RecentSubjects(ctx context.Context, n int) ([]string, error) {
	if _, err := r.run(ctx, "rev-parse", "--verify", "-q", "HEAD"); err != nil {
		return nil, nil
	}
	out, err := r.output(ctx, nil, "log", "--no-merges", "--format=%s", "-n", strconv.Itoa(n))
	if err != nil {
		return nil, err
	}
	return lines(out), nil
}

// record separators for CommitsBetween.
const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// CommitsBetween returns the commits reachable from to but not from, oldest
// first. An empty from means the whole history of to.
// Shells out to: git log --reverse <from>..<to>
func (r *Repo) CommitsBetween(ctx context.Context, from, to string) ([]Commit, error) {
	if to == "" {
		to = "HEAD"
	}
	rng := to
	if from != "" {
		rng = from + ".." + to
	}
	out, err := r.output(ctx, nil, "log", "--reverse", "--no-merges",
		"--format=%H"+fieldSep+"%s"+fieldSep+"%b"+recordSep, rng)
	if err != nil {
		return nil, err
	}

	var commits []Commit
	for _, rec := range strings.Split(out, recordSep) {
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		fields := strings.SplitN(rec, fieldSep, 3)
		c := Commit{Hash: fields[0]}
		if len(fields) > 1 {
			c.Subject = fields[1]
		}
		if len(fields) > 2 {
			c.Body = strings.TrimSpace(fields[2])
		}
		commits = append(commits, c)
	}
	return commits, nil
}

// DiffBetween returns the diff from the merge base of from and to.
// Shells out to: git diff <from>...<to>
func (r *Repo) DiffBetween(ctx context.Context, from, to string) (string, error) {
	if to == "" {
		to = "HEAD"
	}
	return r.output(ctx, nil, "diff", "--no-color", "--no-ext-diff", from+"..."+to)
}

// DiffStat returns `git diff --stat` between from and to.
func (r *Repo) DiffStat(ctx context.Context, from, to string) (string, error) {
	if to == "" {
		to = "HEAD"
	}
	return r.run(ctx, "diff", "--stat", from+"..."+to)
}

// Bump is a semantic version increment.
type Bump int

const (
	BumpPatch Bump = iota
	BumpMinor
	BumpMajor
)

func (b Bump) String() string {
	switch b {
	case BumpMajor:
		return "major"
	case BumpMinor:
		return "minor"
	default:
		return "patch"
	}
}

var (
	semverTag      = regexp.MustCompile(`^(v?)(\d+)\.(\d+)\.(\d+)`)
	breakingHeader = regexp.MustCompile(`^[a-zA-Z]+(\([^)]*\))?!:`)
	featHeader     = regexp.MustCompile(`^feat(\([^)]*\))?:`)
)

// BumpFor derives the increment implied by conventional commit messages.
func BumpFor(commits []Commit) Bump {
	bump := BumpPatch
	for _, c := range commits {
		if breakingHeader.MatchString(c.Subject) || strings.Contains(c.Body, "BREAKING CHANGE") {
			return BumpMajor
		}
		if featHeader.MatchString(c.Subject) {
			bump = BumpMinor
		}
	}
	return bump
}

// VersionBump returns the tag that follows latest for the given increment,
// keeping a leading "v". An empty latest starts at 0.1.0.
func VersionBump(latest string, bump Bump) (string, error) {
	if latest == "" {
		return "v0.1.0", nil
	}
	m := semverTag.FindStringSubmatch(latest)
	if m == nil {
		return "", fmt.Errorf("tag %q is not a semantic version", latest)
	}
	major, _ := strconv.Atoi(m[2])
	minor, _ := strconv.Atoi(m[3])
	patch, _ := strconv.Atoi(m[4])

	switch bump {
	case BumpMajor:
		major, minor, patch = major+1, 0, 0
	case BumpMinor:
		minor, patch = minor+1, 0
	default:
		patch++
	}
	return fmt.Sprintf("%s%d.%d.%d", m[1], major, minor, patch), nil
}

package rustdesk

import (
	"regexp"
	"strconv"
)

// DefaultBinary is the executable name RustDesk installs.
const DefaultBinary = "rustdesk"

// Match is one role recognized on a process-listing line.
type Match struct {
	Role      Role
	PID       int
	SessionID string
}

type rolePattern struct {
	role Role
	re   *regexp.Regexp
}

// Classifier recognizes RustDesk roles on `ps -f` style lines
// ("<user> <pid> ... <command>").
//
// Every pattern is anchored at the end of the line, so the bare "main" pattern
// (command ending in the binary name) never matches a line carrying a flag.
type Classifier struct {
	patterns []rolePattern
}

// NewClassifier builds the ordered pattern table for the given executable name.
func NewClassifier(binary string) *Classifier {
	if binary == "" {
		binary = DefaultBinary
	}
	prefix := `^\S+ +(?P<pid>\d+)\b.*` + regexp.QuoteMeta(binary)
	session := ` (?P<session>\d+)$`

	return &Classifier{patterns: []rolePattern{
		{RoleService, regexp.MustCompile(prefix + ` --service$`)},
		{RoleMain, regexp.MustCompile(prefix + `$`)},
		{RoleConnectionManager, regexp.MustCompile(prefix + ` --cm$`)},
		{RoleConnect, regexp.MustCompile(prefix + ` --connect` + session)},
		{RoleFileTransfer, regexp.MustCompile(prefix + ` --file-transfer` + session)},
		{RolePortForward, regexp.MustCompile(prefix + ` --port-forward` + session)},
	}}
}

// Classify evaluates every pattern against line and returns each match.
// A line matching nothing yields nil; that is not an error.
func (c *Classifier) Classify(line string) []Match {
	var matches []Match
	for _, p := range c.patterns {
		groups := p.re.FindStringSubmatch(line)
		if groups == nil {
			continue
		}
		pid, err := strconv.Atoi(groups[p.re.SubexpIndex("pid")])
		if err != nil || pid <= 0 {
			continue
		}
		m := Match{Role: p.role, PID: pid}
		if idx := p.re.SubexpIndex("session"); idx >= 0 {
			m.SessionID = groups[idx]
		}
		matches = append(matches, m)
	}
	return matches
}

// Package grouping derives a project/area group name for a session from
// its metadata. Users can steer the result through an optional JSON config
// at ~/.copilot/dashboard-config.json.
package grouping

import (
	"encoding/json"
	"log"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Directories that never make a useful group name on their own.
var skipDirs = map[string]bool{
	"":          true,
	"c:":        true,
	"d:":        true,
	"e:":        true,
	"q:":        true,
	"users":     true,
	"home":      true,
	"src":       true,
	"documents": true,
	"desktop":   true,
	"projects":  true,
	"repos":     true,
	"github":    true,
}

var driveLetter = regexp.MustCompile(`^[a-zA-Z]:$`)

// Fallback keyword buckets, checked in order.
var keywordGroups = []struct {
	keywords []string
	group    string
}{
	{[]string{"code review", "pr review"}, "PR Reviews"},
	{[]string{"pipeline", "build pipeline", "ci/cd"}, "CI/CD Pipelines"},
	{[]string{"prune", "cleanup", "delete branch", "stale"}, "Branch Cleanup"},
	{[]string{"dashboard", "monitor"}, "Session Dashboard"},
	{[]string{"spec", "specification", "document"}, "Specifications"},
}

type fileConfig struct {
	Grouping struct {
		SkipDirs []string          `json:"skip_dirs"`
		Mappings map[string]string `json:"mappings"`
	} `json:"grouping"`
}

// Grouper holds the user's custom mappings, loaded once at startup.
type Grouper struct {
	mappingKeys []string // lowercased, sorted for deterministic matching
	mappings    map[string]string
	skipDirs    map[string]bool
}

// Load reads the optional dashboard config. A missing or malformed file
// just means no customizations.
func Load(configPath string) *Grouper {
	g := &Grouper{
		mappings: map[string]string{},
		skipDirs: skipDirs,
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return g
	}
	var cfg fileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Printf("grouping: ignoring malformed config %s: %v", configPath, err)
		return g
	}

	for keyword, group := range cfg.Grouping.Mappings {
		k := strings.ToLower(keyword)
		g.mappings[k] = group
		g.mappingKeys = append(g.mappingKeys, k)
	}
	sort.Strings(g.mappingKeys)

	if len(cfg.Grouping.SkipDirs) > 0 {
		g.skipDirs = make(map[string]bool, len(skipDirs)+len(cfg.Grouping.SkipDirs))
		for d := range skipDirs {
			g.skipDirs[d] = true
		}
		for _, d := range cfg.Grouping.SkipDirs {
			g.skipDirs[strings.ToLower(d)] = true
		}
	}
	return g
}

// Session carries the metadata fields the grouping rules look at.
type Session struct {
	Cwd            string
	Repository     string
	Summary        string
	FirstMsg       string
	LastCpOverview string
}

// Name derives the group for one session. Rules, in order: user-defined
// mappings, repository name, last meaningful cwd segment, content keyword
// buckets, then "General".
func (g *Grouper) Name(s Session) string {
	cwd := strings.ReplaceAll(s.Cwd, `\`, "/")
	context := strings.ToLower(s.Summary) + " " + strings.ToLower(s.FirstMsg) + " " +
		strings.ToLower(s.LastCpOverview) + " " + strings.ToLower(cwd)

	for _, keyword := range g.mappingKeys {
		if strings.Contains(context, keyword) {
			return g.mappings[keyword]
		}
	}

	if s.Repository != "" {
		repoName := s.Repository
		if i := strings.LastIndex(repoName, "/"); i >= 0 {
			repoName = repoName[i+1:]
		}
		if repoName != "" {
			return repoName
		}
	}

	if cwd != "" {
		var last string
		for _, part := range strings.Split(strings.TrimRight(cwd, "/"), "/") {
			lower := strings.ToLower(part)
			if g.skipDirs[lower] || driveLetter.MatchString(part) {
				continue
			}
			last = part
		}
		if last != "" {
			return last
		}
	}

	for _, kg := range keywordGroups {
		for _, kw := range kg.keywords {
			if strings.Contains(context, kw) {
				return kg.group
			}
		}
	}

	return "General"
}

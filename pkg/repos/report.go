// Package repos builds the enabled-repository report sent to the
// entitlement server. It reads yum repo-definition files directly; the
// repository model itself belongs to yum and is not reproduced here.
package repos

import (
	"path/filepath"
	"strings"

	"github.com/go-ini/ini"
	"github.com/pkg/errors"
)

// DefaultReposDir is the yum repo-definition directory.
const DefaultReposDir = "/etc/yum.repos.d"

// DefaultRepoPath is the repo-definition file managed by subscription-manager.
const DefaultRepoPath = "/etc/yum.repos.d/redhat.repo"

// EnabledReport is the wire payload for the enabled-repository report.
type EnabledReport struct {
	Enabled EnabledRepos `json:"enabled_repos"`
}

// EnabledRepos lists the enabled repositories found in one
// repo-definition file.
type EnabledRepos struct {
	Repos []Repo `json:"repos"`
}

// Repo identifies a single enabled repository.
type Repo struct {
	RepositoryID string   `json:"repositoryid"`
	BaseURL      []string `json:"baseurl"`
}

// Generate builds the report for the repo-definition file at repoPath.
// Only repositories defined in a file whose basename matches repoPath's
// basename are included, and only when enabled.
func Generate(reposDir, repoPath string) (*EnabledReport, error) {
	repofn := filepath.Base(repoPath)

	matches, err := filepath.Glob(filepath.Join(reposDir, "*.repo"))
	if err != nil {
		return nil, errors.Wrap(err, "scanning repos directory")
	}

	report := &EnabledReport{
		Enabled: EnabledRepos{
			Repos: []Repo{},
		},
	}

	for _, path := range matches {
		if filepath.Base(path) != repofn {
			continue
		}

		enabled, err := findEnabled(path)
		if err != nil {
			return nil, err
		}

		report.Enabled.Repos = append(report.Enabled.Repos, enabled...)
	}

	return report, nil
}

func findEnabled(path string) ([]Repo, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading repo file %s", path)
	}

	var enabled []Repo
	for _, section := range cfg.Sections() {
		if section.Name() == ini.DEFAULT_SECTION {
			continue
		}

		if !section.Key("enabled").MustBool(false) {
			continue
		}

		enabled = append(enabled, Repo{
			RepositoryID: section.Name(),
			// baseurl may carry multiple whitespace-separated URLs
			BaseURL: strings.Fields(section.Key("baseurl").String()),
		})
	}

	return enabled, nil
}

package repos

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const redhatRepo = `[rhel-7-server-rpms]
name = Red Hat Enterprise Linux 7 Server (RPMs)
baseurl = https://cdn.example.com/content/dist/rhel/server/7/$releasever/$basearch/os
enabled = 1

[rhel-7-server-optional-rpms]
name = Red Hat Enterprise Linux 7 Server - Optional (RPMs)
baseurl = https://cdn.example.com/content/dist/rhel/server/7/$releasever/$basearch/optional/os
enabled = 1

[rhel-7-server-debug-rpms]
name = Red Hat Enterprise Linux 7 Server (Debug RPMs)
baseurl = https://cdn.example.com/content/dist/rhel/server/7/$releasever/$basearch/debug
enabled = 0
`

const otherRepo = `[epel]
name = Extra Packages for Enterprise Linux
baseurl = https://mirror.example.com/epel/7/$basearch
enabled = 1
`

func writeRepoFiles(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "redhat.repo"), []byte(redhatRepo), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.repo"), []byte(otherRepo), 0644))
	return dir
}

func TestGenerateFiltersByBasename(t *testing.T) {
	t.Parallel()

	dir := writeRepoFiles(t)

	report, err := Generate(dir, "/etc/yum.repos.d/redhat.repo")
	require.NoError(t, err)

	require.Len(t, report.Enabled.Repos, 2)
	require.Equal(t, "rhel-7-server-rpms", report.Enabled.Repos[0].RepositoryID)
	require.Equal(t, "rhel-7-server-optional-rpms", report.Enabled.Repos[1].RepositoryID)
	require.Equal(t,
		[]string{"https://cdn.example.com/content/dist/rhel/server/7/$releasever/$basearch/os"},
		report.Enabled.Repos[0].BaseURL,
	)
}

func TestGenerateSkipsDisabled(t *testing.T) {
	t.Parallel()

	dir := writeRepoFiles(t)

	report, err := Generate(dir, "redhat.repo")
	require.NoError(t, err)

	for _, repo := range report.Enabled.Repos {
		require.NotEqual(t, "rhel-7-server-debug-rpms", repo.RepositoryID)
	}
}

func TestGenerateNoMatchingFile(t *testing.T) {
	t.Parallel()

	dir := writeRepoFiles(t)

	report, err := Generate(dir, "nonexistent.repo")
	require.NoError(t, err)
	require.Empty(t, report.Enabled.Repos)
}

func TestGenerateMultipleBaseURLs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	contents := "[mirrored]\nbaseurl = https://a.example.com/os https://b.example.com/os\nenabled = 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mirrored.repo"), []byte(contents), 0644))

	report, err := Generate(dir, "mirrored.repo")
	require.NoError(t, err)
	require.Len(t, report.Enabled.Repos, 1)
	require.Equal(t,
		[]string{"https://a.example.com/os", "https://b.example.com/os"},
		report.Enabled.Repos[0].BaseURL,
	)
}

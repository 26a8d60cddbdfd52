package fstab

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# /etc/fstab: static file system information.
UUID=1234-abcd  /               ext4    errors=remount-ro 0       1

fileserver:/export/home   /mnt/home    nfs   rw,vers=3,timeo=600,hard,port=2049   0 0
fileserver:/export/data   /mnt/data    nfs   ro,rsize=65536,wsize=65536,mountport=635
fileserver:/export/data2  /mnt/data2   nfs   defaults 0 0
scratch:/big/scratch      /mnt/data/scratch/  nfs  nfsvers=3,sec=sys,retrans=2 0 0
oddserver                 /mnt/odd     nfs   defaults 0 0
tmpfs                     /tmp         tmpfs size=1G 0 0
`

func sampleEntries(t *testing.T) []Entry {
	t.Helper()
	entries, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	return entries
}

func TestParse(t *testing.T) {
	t.Run("SkipsCommentsAndBlankLines", func(t *testing.T) {
		entries := sampleEntries(t)
		require.Len(t, entries, 7)
		assert.Equal(t, "UUID=1234-abcd", entries[0].Source)
	})

	t.Run("Fields", func(t *testing.T) {
		e := sampleEntries(t)[1]
		assert.Equal(t, Entry{
			Source:  "fileserver:/export/home",
			Target:  "/mnt/home",
			Type:    "nfs",
			Options: []string{"rw", "vers=3", "timeo=600", "hard", "port=2049"},
		}, e)
		assert.True(t, e.IsNFS())
	})

	t.Run("DumpAndPassDefaultToZero", func(t *testing.T) {
		e := sampleEntries(t)[2]
		assert.Equal(t, 0, e.Dump)
		assert.Equal(t, 0, e.Pass)
		assert.Equal(t, 1, sampleEntries(t)[0].Pass)
	})

	t.Run("OctalEscapes", func(t *testing.T) {
		entries, err := Parse(strings.NewReader(`srv:/my\040share /mnt/my\040share nfs defaults 0 0`))
		require.NoError(t, err)
		assert.Equal(t, "srv:/my share", entries[0].Source)
		assert.Equal(t, "/mnt/my share", entries[0].Target)
	})

	t.Run("Malformed", func(t *testing.T) {
		tests := []struct {
			name string
			line string
		}{
			{"TooFewFields", "srv:/x /mnt/x nfs"},
			{"TooManyFields", "srv:/x /mnt/x nfs defaults 0 0 extra"},
			{"BadDump", "srv:/x /mnt/x nfs defaults zero 0"},
			{"BadPass", "srv:/x /mnt/x nfs defaults 0 one"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := Parse(strings.NewReader("# ok\n" + tt.line + "\n"))
				require.Error(t, err)
				assert.Contains(t, err.Error(), "line 2")
			})
		}
	})
}

func TestEntryString(t *testing.T) {
	e := Entry{Source: "srv:/x", Target: "/mnt/x", Type: "nfs", Options: []string{"rw", "vers=3"}, Pass: 2}
	assert.Equal(t, "srv:/x\t/mnt/x\tnfs\trw,vers=3\t0\t2", e.String())

	again, err := Parse(strings.NewReader(e.String()))
	require.NoError(t, err)
	assert.Equal(t, []Entry{e}, again)

	assert.Contains(t, Entry{Source: "a", Target: "/b", Type: "nfs"}.String(), "\tdefaults\t")
}

func TestOptionsToQuery(t *testing.T) {
	tests := []struct {
		name string
		opts []string
		want string
	}{
		{"Empty", nil, ""},
		{"OnlyUnsupported", []string{"rw", "hard", "noatime"}, ""},
		{"KeptAsIs", []string{"timeo=600", "rsize=1024", "wsize=2048", "sec=sys", "retrans=3", "mountport=635"},
			"?timeo=600&rsize=1024&wsize=2048&sec=sys&retrans=3&mountport=635"},
		{"Version", []string{"vers=3"}, "?version=3"},
		{"NFSVersion", []string{"nfsvers=4"}, "?version=4"},
		{"Port", []string{"rw", "port=2049"}, "?nfsport=2049"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OptionsToQuery(tt.opts))
		})
	}
}

func TestPathToURL(t *testing.T) {
	entries := sampleEntries(t)

	tests := []struct {
		name string
		path string
		want string
	}{
		{"MountPoint", "/mnt/home", "nfs://fileserver/export/home?version=3&timeo=600&nfsport=2049"},
		{"TrailingSlash", "/mnt/home/", "nfs://fileserver/export/home?version=3&timeo=600&nfsport=2049"},
		{"Nested", "/mnt/home/alice/projects", "nfs://fileserver/export/home/alice/projects?version=3&timeo=600&nfsport=2049"},
		{"SimilarPrefix", "/mnt/data2/x", "nfs://fileserver/export/data2/x"},
		{"DeepestMountWins", "/mnt/data/scratch/run1", "nfs://scratch/big/scratch/run1?version=3&sec=sys&retrans=2"},
		{"ParentOfNested", "/mnt/data/other", "nfs://fileserver/export/data/other?rsize=65536&wsize=65536&mountport=635"},
		{"SourceWithoutFolder", "/mnt/odd/sub", "nfs://oddserver/sub"},
		{"DotSegments", "/mnt/home/alice/../bob", "nfs://fileserver/export/home/bob?version=3&timeo=600&nfsport=2049"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PathToURL(tt.path, entries)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("NoMatch", func(t *testing.T) {
		_, err := PathToURL("/srv/elsewhere", entries)
		assert.ErrorIs(t, err, ErrNoMatch)
	})

	t.Run("IgnoresOtherFilesystems", func(t *testing.T) {
		_, err := PathToURL("/tmp/x", entries)
		assert.ErrorIs(t, err, ErrNoMatch)
	})

	t.Run("RelativeExport", func(t *testing.T) {
		_, err := PathToURL("/mnt/r", []Entry{{Source: "srv:export", Target: "/mnt/r", Type: "nfs"}})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoMatch)
	})
}

func TestResolve(t *testing.T) {
	file := filepath.Join(t.TempDir(), "fstab")
	require.NoError(t, os.WriteFile(file, []byte(sample), 0o644))

	t.Run("URLPassesThrough", func(t *testing.T) {
		got, err := Resolve("nfs://srv/export?uid=0", file)
		require.NoError(t, err)
		assert.Equal(t, "nfs://srv/export?uid=0", got)
	})

	t.Run("PathIsTranslated", func(t *testing.T) {
		got, err := Resolve("/mnt/data2", file)
		require.NoError(t, err)
		assert.Equal(t, "nfs://fileserver/export/data2", got)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Resolve("/mnt/data2", filepath.Join(t.TempDir(), "absent"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

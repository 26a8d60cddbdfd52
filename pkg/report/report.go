// Package report rolls crawled entries up into per-directory usage and
// writes the result to sinks.
package report

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marmos91/nfsusage/pkg/catalog"
	"github.com/marmos91/nfsusage/pkg/nfs"
)

// DirUsage is the space used below one directory.
type DirUsage struct {
	Path  string `json:"path" yaml:"path"`
	Depth int    `json:"depth" yaml:"depth"`
	Files int64  `json:"files" yaml:"files"`
	Dirs  int64  `json:"dirs" yaml:"dirs"`
	Bytes uint64 `json:"bytes" yaml:"bytes"`
	Used  uint64 `json:"used" yaml:"used"`
}

// Report is the usage of one crawl.
type Report struct {
	RunID    string         `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	URL      string         `json:"url" yaml:"url"`
	Root     string         `json:"root" yaml:"root"`
	Started  time.Time      `json:"started" yaml:"started"`
	Finished time.Time      `json:"finished" yaml:"finished"`
	Depth    int            `json:"depth" yaml:"depth"`
	Totals   catalog.Totals `json:"totals" yaml:"totals"`
	Dirs     []DirUsage     `json:"dirs" yaml:"dirs"`
}

// Aggregator accumulates records into per-directory usage for every
// directory at most Depth levels below Root. Depth 0 keeps only Root.
type Aggregator struct {
	root  string
	depth int
	dirs  map[string]*DirUsage
}

// NewAggregator creates an Aggregator. A negative depth counts as 0.
func NewAggregator(root string, depth int) *Aggregator {
	root = cleanRoot(root)
	a := &Aggregator{
		root:  root,
		depth: max(depth, 0),
		dirs:  make(map[string]*DirUsage),
	}
	a.dirs[root] = &DirUsage{Path: root}
	return a
}

func cleanRoot(root string) string {
	if root == "" {
		return "/"
	}
	return path.Clean("/" + root)
}

// Add accounts for one record. Records outside Root are ignored.
func (a *Aggregator) Add(r catalog.Record) {
	if r.Path == a.root || !catalog.Within(r.Path, a.root) {
		return
	}

	rel := strings.TrimPrefix(strings.TrimPrefix(r.Path, a.root), "/")
	parts := strings.Split(rel, "/")
	isDir := r.Type == nfs.TypeDirectory.String()

	// A directory within depth gets its own row even if it stays empty.
	if isDir && len(parts) <= a.depth {
		a.dir(r.Path, len(parts))
	}

	cur := a.root
	for i := 0; i <= min(len(parts)-1, a.depth); i++ {
		if i > 0 {
			cur = path.Join(cur, parts[i-1])
		}
		u := a.dir(cur, i)
		if isDir {
			u.Dirs++
		} else {
			u.Files++
			u.Bytes += r.Size
		}
		u.Used += r.Used
	}
}

func (a *Aggregator) dir(p string, depth int) *DirUsage {
	u, ok := a.dirs[p]
	if !ok {
		u = &DirUsage{Path: p, Depth: depth}
		a.dirs[p] = u
	}
	return u
}

// Result returns the usage rows, largest first, ties broken by path.
func (a *Aggregator) Result() []DirUsage {
	out := make([]DirUsage, 0, len(a.dirs))
	for _, u := range a.dirs {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bytes != out[j].Bytes {
			return out[i].Bytes > out[j].Bytes
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// Aggregate rolls records up to depth levels below root.
func Aggregate(records []catalog.Record, root string, depth int) []DirUsage {
	a := NewAggregator(root, depth)
	for _, r := range records {
		a.Add(r)
	}
	return a.Result()
}

// Format is a report encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Ext is the file extension for the format.
func (f Format) Ext() string {
	if f == FormatYAML {
		return ".yaml"
	}
	return ".json"
}

// Encode renders r in the given format.
func Encode(r *Report, f Format) ([]byte, error) {
	switch f {
	case FormatJSON, "":
		return json.MarshalIndent(r, "", "  ")
	case FormatYAML:
		return yaml.Marshal(r)
	}
	return nil, fmt.Errorf("unknown report format %q", f)
}

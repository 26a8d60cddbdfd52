// Package fstab translates local paths on NFS mounts into nfs:// URLs by
// looking them up in an fstab(5) file.
package fstab

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultPath is the system fstab.
const DefaultPath = "/etc/fstab"

// ErrNoMatch is returned by PathToURL when no nfs entry covers the path.
var ErrNoMatch = errors.New("no matching nfs entry in fstab")

// Entry is one line of an fstab file.
type Entry struct {
	Source  string
	Target  string
	Type    string
	Options []string
	Dump    int
	Pass    int
}

// String renders e as a tab separated fstab line, without newline.
func (e Entry) String() string {
	opts := "defaults"
	if len(e.Options) > 0 {
		opts = strings.Join(e.Options, ",")
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s\t%d\t%d", e.Source, e.Target, e.Type, opts, e.Dump, e.Pass)
}

// IsNFS reports whether e mounts an NFS export.
func (e Entry) IsNFS() bool {
	return e.Type == "nfs"
}

// Parse reads fstab lines from r. Blank lines and comments are skipped.
// The dump and pass fields may be omitted and default to 0.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		e, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read fstab: %w", err)
	}
	return entries, nil
}

// ParseFile parses the fstab file at p.
func ParseFile(p string) ([]Entry, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return entries, nil
}

func parseLine(line string) (Entry, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 || len(fields) > 6 {
		return Entry{}, fmt.Errorf("expected 4 to 6 fields, got %d", len(fields))
	}

	e := Entry{
		Source:  unescape(fields[0]),
		Target:  unescape(fields[1]),
		Type:    fields[2],
		Options: strings.Split(fields[3], ","),
	}

	var err error
	if len(fields) > 4 {
		if e.Dump, err = strconv.Atoi(fields[4]); err != nil {
			return Entry{}, fmt.Errorf("invalid dump field %q", fields[4])
		}
	}
	if len(fields) > 5 {
		if e.Pass, err = strconv.Atoi(fields[5]); err != nil {
			return Entry{}, fmt.Errorf("invalid pass field %q", fields[5])
		}
	}
	return e, nil
}

// unescape decodes the octal escapes fstab uses for blanks, e.g. \040.
func unescape(field string) string {
	if !strings.Contains(field, `\`) {
		return field
	}

	var b strings.Builder
	for i := 0; i < len(field); i++ {
		if field[i] == '\\' && i+3 < len(field) {
			if v, err := strconv.ParseUint(field[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(field[i])
	}
	return b.String()
}

// OptionsToQuery converts fstab mount options into the URL query the nfs
// package understands. Options without a URL equivalent are dropped. The
// result is empty or starts with "?".
func OptionsToQuery(opts []string) string {
	var query []string
	for _, opt := range opts {
		key, value, _ := strings.Cut(opt, "=")
		switch key {
		case "timeo", "rsize", "wsize", "sec", "retrans", "mountport":
			query = append(query, opt)
		case "vers", "nfsvers":
			query = append(query, "version="+value)
		case "port":
			query = append(query, "nfsport="+value)
		}
	}
	if len(query) == 0 {
		return ""
	}
	return "?" + strings.Join(query, "&")
}

// PathToURL returns the nfs:// URL of the local path p, which must lie on
// one of the nfs entries. When mounts are nested the deepest one wins.
func PathToURL(p string, entries []Entry) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	var (
		match *Entry
		depth = -1
	)
	for i := range entries {
		e := &entries[i]
		if !e.IsNFS() {
			continue
		}
		target := filepath.Clean(e.Target)
		if !within(abs, target) {
			continue
		}
		if n := len(target); n > depth {
			match, depth = e, n
		}
	}
	if match == nil {
		return "", fmt.Errorf("%s: %w", abs, ErrNoMatch)
	}

	server, folder, ok := strings.Cut(match.Source, ":")
	if !ok {
		folder = "/"
	}
	if !strings.HasPrefix(folder, "/") {
		return "", fmt.Errorf("fstab source %q: export %q is not absolute", match.Source, folder)
	}

	rel, err := filepath.Rel(filepath.Clean(match.Target), abs)
	if err != nil {
		return "", err
	}
	folder = path.Join(folder, filepath.ToSlash(rel))
	return "nfs://" + server + folder + OptionsToQuery(match.Options), nil
}

// within reports whether p is dir or below it. /mnt/share2 is not within
// /mnt/share.
func within(p, dir string) bool {
	if dir == "/" || p == dir {
		return true
	}
	return strings.HasPrefix(p, dir+"/")
}

// Resolve returns target unchanged when it already is an nfs:// URL and
// otherwise translates it through the fstab file at fstabPath.
func Resolve(target, fstabPath string) (string, error) {
	if strings.HasPrefix(target, "nfs://") {
		return target, nil
	}
	entries, err := ParseFile(fstabPath)
	if err != nil {
		return "", err
	}
	return PathToURL(target, entries)
}

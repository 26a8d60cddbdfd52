package report

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/nfsusage/pkg/catalog"
)

func records() []catalog.Record {
	return []catalog.Record{
		{Path: "/a.txt", Type: "file", Size: 100, Used: 4096},
		{Path: "/docs", Type: "dir", Used: 4096},
		{Path: "/docs/readme.md", Type: "file", Size: 10, Used: 4096},
		{Path: "/docs/notes", Type: "dir", Used: 4096},
		{Path: "/docs/notes/todo.txt", Type: "file", Size: 1, Used: 4096},
		{Path: "/media", Type: "dir", Used: 4096},
		{Path: "/media/clip.mp4", Type: "file", Size: 5000, Used: 8192},
		{Path: "/empty", Type: "dir", Used: 4096},
	}
}

func byPath(rows []DirUsage) map[string]DirUsage {
	out := make(map[string]DirUsage, len(rows))
	for _, r := range rows {
		out[r.Path] = r
	}
	return out
}

func TestAggregate(t *testing.T) {
	t.Run("DepthZeroIsTotal", func(t *testing.T) {
		rows := Aggregate(records(), "/", 0)
		require.Len(t, rows, 1)
		assert.Equal(t, DirUsage{Path: "/", Files: 4, Dirs: 4, Bytes: 5111, Used: 4096*7 + 8192}, rows[0])
	})

	t.Run("DepthOne", func(t *testing.T) {
		rows := Aggregate(records(), "/", 1)
		got := byPath(rows)
		require.Len(t, got, 4)

		assert.Equal(t, uint64(5111), got["/"].Bytes)
		assert.Equal(t, DirUsage{Path: "/docs", Depth: 1, Files: 2, Dirs: 1, Bytes: 11, Used: 3 * 4096}, got["/docs"])
		assert.Equal(t, DirUsage{Path: "/media", Depth: 1, Files: 1, Bytes: 5000, Used: 8192}, got["/media"])
		assert.Equal(t, DirUsage{Path: "/empty", Depth: 1}, got["/empty"])
	})

	t.Run("LargestFirst", func(t *testing.T) {
		rows := Aggregate(records(), "/", 1)
		var order []string
		for _, r := range rows {
			order = append(order, r.Path)
		}
		assert.Equal(t, []string{"/", "/media", "/docs", "/empty"}, order)
	})

	t.Run("DepthTwo", func(t *testing.T) {
		got := byPath(Aggregate(records(), "/", 2))
		assert.Equal(t, DirUsage{Path: "/docs/notes", Depth: 2, Files: 1, Bytes: 1, Used: 4096}, got["/docs/notes"])
	})

	t.Run("Subtree", func(t *testing.T) {
		got := byPath(Aggregate(records(), "/docs", 1))
		require.Len(t, got, 2)
		assert.Equal(t, uint64(11), got["/docs"].Bytes)
		assert.Equal(t, int64(1), got["/docs"].Dirs)
		assert.Equal(t, uint64(1), got["/docs/notes"].Bytes)
	})

	t.Run("IgnoresOutsideRoot", func(t *testing.T) {
		rows := Aggregate([]catalog.Record{{Path: "/docs2/x", Type: "file", Size: 9}}, "/docs", 1)
		require.Len(t, rows, 1)
		assert.Zero(t, rows[0].Bytes)
	})

	t.Run("NegativeDepth", func(t *testing.T) {
		assert.Len(t, Aggregate(records(), "", -3), 1)
	})
}

func sampleReport() *Report {
	started := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	return &Report{
		RunID:    "run-1",
		URL:      "nfs://srv/export",
		Root:     "/",
		Started:  started,
		Finished: started.Add(time.Minute),
		Depth:    1,
		Totals:   catalog.Totals{Dirs: 4, Files: 4, Bytes: 5111},
		Dirs:     Aggregate(records(), "/", 1),
	}
}

func TestEncode(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		data, err := Encode(sampleReport(), FormatJSON)
		require.NoError(t, err)

		var back Report
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, "run-1", back.RunID)
		assert.Equal(t, uint64(5111), back.Totals.Bytes)
		assert.Len(t, back.Dirs, 4)
		assert.Contains(t, string(data), `"run_id": "run-1"`)
	})

	t.Run("YAML", func(t *testing.T) {
		data, err := Encode(sampleReport(), FormatYAML)
		require.NoError(t, err)

		var back map[string]any
		require.NoError(t, yaml.Unmarshal(data, &back))
		assert.Equal(t, "nfs://srv/export", back["url"])
		assert.Contains(t, string(data), "bytes: 5111")
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		_, err := Encode(sampleReport(), Format("xml"))
		assert.Error(t, err)
	})
}

func TestFileSink(t *testing.T) {
	ctx := context.Background()

	t.Run("WritesJSON", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "reports")
		sink, err := NewFileSink(dir, FormatJSON)
		require.NoError(t, err)

		w, err := sink.Write(ctx, sampleReport())
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "run-1.json"), w.Location)

		data, err := os.ReadFile(w.Location)
		require.NoError(t, err)
		assert.Equal(t, len(data), w.Bytes)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temporary file must be gone")
	})

	t.Run("WritesYAML", func(t *testing.T) {
		sink, err := NewFileSink(t.TempDir(), FormatYAML)
		require.NoError(t, err)

		w, err := sink.Write(ctx, sampleReport())
		require.NoError(t, err)
		assert.Equal(t, ".yaml", filepath.Ext(w.Location))
	})

	t.Run("NameFromStartWithoutRunID", func(t *testing.T) {
		sink, err := NewFileSink(t.TempDir(), FormatJSON)
		require.NoError(t, err)

		r := sampleReport()
		r.RunID = ""
		w, err := sink.Write(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, "20250304T050607Z.json", filepath.Base(w.Location))
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		_, err := NewFileSink("", FormatJSON)
		assert.Error(t, err)
		_, err = NewFileSink(t.TempDir(), Format("csv"))
		assert.Error(t, err)
	})
}

type fakeS3 struct {
	mu    sync.Mutex
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink(t *testing.T) {
	ctx := context.Background()

	t.Run("PutsJSONUnderPrefix", func(t *testing.T) {
		client := &fakeS3{}
		sink, err := NewS3Sink(client, "bucket", "usage/reports")
		require.NoError(t, err)

		w, err := sink.Write(ctx, sampleReport())
		require.NoError(t, err)
		assert.Equal(t, "s3://bucket/usage/reports/run-1.json", w.Location)

		assert.Equal(t, "bucket", *client.input.Bucket)
		assert.Equal(t, "usage/reports/run-1.json", *client.input.Key)
		assert.Equal(t, "application/json", *client.input.ContentType)
		assert.Equal(t, w.Bytes, len(client.body))

		var back Report
		require.NoError(t, json.Unmarshal(client.body, &back))
		assert.Equal(t, "run-1", back.RunID)
	})

	t.Run("NoPrefix", func(t *testing.T) {
		sink, err := NewS3Sink(&fakeS3{}, "bucket", "")
		require.NoError(t, err)
		assert.Equal(t, "run-1.json", sink.Key(sampleReport()))
	})

	t.Run("UploadError", func(t *testing.T) {
		sink, err := NewS3Sink(&fakeS3{err: errors.New("access denied")}, "bucket", "")
		require.NoError(t, err)

		_, err = sink.Write(ctx, sampleReport())
		assert.ErrorContains(t, err, "access denied")
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		_, err := NewS3Sink(nil, "bucket", "")
		assert.Error(t, err)
		_, err = NewS3Sink(&fakeS3{}, "", "")
		assert.Error(t, err)
	})

	t.Run("ClientNeedsRegion", func(t *testing.T) {
		_, err := NewS3Client(ctx, S3Config{Bucket: "b"})
		assert.Error(t, err)
	})
}

type uploads struct {
	sinks []string
	bytes []int
	errs  []error
}

func (u *uploads) ObserveUpload(sink string, bytes int, elapsed time.Duration, err error) {
	u.sinks = append(u.sinks, sink)
	u.bytes = append(u.bytes, bytes)
	u.errs = append(u.errs, err)
}

func TestWriteAll(t *testing.T) {
	ctx := context.Background()

	file, err := NewFileSink(t.TempDir(), FormatJSON)
	require.NoError(t, err)
	broken, err := NewS3Sink(&fakeS3{err: errors.New("boom")}, "bucket", "")
	require.NoError(t, err)

	m := &uploads{}
	err = WriteAll(ctx, sampleReport(), []Sink{broken, file}, m)
	assert.ErrorContains(t, err, "s3 sink")

	assert.Equal(t, []string{"s3", "file"}, m.sinks)
	assert.Error(t, m.errs[0])
	assert.NoError(t, m.errs[1])
	assert.Positive(t, m.bytes[1])
}

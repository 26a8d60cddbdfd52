package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nfsusage/pkg/metrics"
)

func TestMetrics(t *testing.T) {
	metrics.InitRegistry()
	reg := metrics.GetRegistry()

	cm, ok := NewCrawlMetrics().(*crawlMetrics)
	require.True(t, ok)
	rm, ok := NewReportMetrics().(*reportMetrics)
	require.True(t, ok)

	t.Run("RPCByStatus", func(t *testing.T) {
		cm.ObserveRPC("NFS", "LOOKUP", 2*time.Millisecond, nil)
		cm.ObserveRPC("NFS", "LOOKUP", time.Millisecond, errors.New("boom"))

		assert.Equal(t, 1.0, testutil.ToFloat64(cm.rpcTotal.WithLabelValues("NFS", "LOOKUP", "success")))
		assert.Equal(t, 1.0, testutil.ToFloat64(cm.rpcTotal.WithLabelValues("NFS", "LOOKUP", "error")))
	})

	t.Run("CrawlCounters", func(t *testing.T) {
		cm.DirListed(2)
		cm.EntriesSeen("file", 5)
		cm.ListError("permission_denied")
		cm.SetInFlight(2, 7)

		assert.Equal(t, 1.0, testutil.ToFloat64(cm.dirsListed.WithLabelValues("2")))
		assert.Equal(t, 5.0, testutil.ToFloat64(cm.entriesSeen.WithLabelValues("file")))
		assert.Equal(t, 1.0, testutil.ToFloat64(cm.listErrors.WithLabelValues("permission_denied")))
		assert.Equal(t, 7.0, testutil.ToFloat64(cm.requestsQueued.WithLabelValues("2")))
	})

	t.Run("Uploads", func(t *testing.T) {
		rm.ObserveUpload("s3", 100, time.Second, nil)
		rm.ObserveUpload("s3", 100, time.Second, errors.New("denied"))

		assert.Equal(t, 100.0, testutil.ToFloat64(rm.uploadBytes.WithLabelValues("s3")))
		assert.Equal(t, 1.0, testutil.ToFloat64(rm.uploadsTotal.WithLabelValues("s3", "error")))
	})

	t.Run("Registered", func(t *testing.T) {
		families, err := reg.Gather()
		require.NoError(t, err)
		names := map[string]bool{}
		for _, f := range families {
			names[f.GetName()] = true
		}
		assert.True(t, names["nfsusage_rpc_requests_total"])
		assert.True(t, names["nfsusage_report_uploads_total"])
	})
}

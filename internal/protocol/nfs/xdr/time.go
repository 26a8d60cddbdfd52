package xdr

import (
	"time"

	"github.com/marmos91/nfsusage/internal/protocol/nfs/types"
)

// ============================================================================
// Time Conversion Helpers
// ============================================================================

// TimeValToTime converts nfstime3 to time.Time.
//
// Per RFC 1813 Section 2.2 the seconds field is unsigned and counts from
// the Unix epoch; nseconds is within the second.
func TimeValToTime(tv types.TimeVal) time.Time {
	return time.Unix(int64(tv.Seconds), int64(tv.Nseconds))
}

// TimeToTimeVal converts time.Time to nfstime3. Times before the epoch
// or after 2106 do not fit and wrap.
func TimeToTimeVal(t time.Time) types.TimeVal {
	return types.TimeVal{
		Seconds:  uint32(t.Unix()),
		Nseconds: uint32(t.Nanosecond()),
	}
}

package badger

// Key layout
//
//	Data      Prefix  Key                     Value
//	Run       "r:"    r:<runID>               catalog.Run (JSON)
//	Entry     "e:"    e:<runID>:<path>        catalog.Record (JSON)
//
// Entry keys of one run share the prefix e:<runID>: and sort by path, so
// ListEntries is a single prefix scan. Run IDs are UUIDs and never contain
// ':'.
const (
	prefixRun   = "r:"
	prefixEntry = "e:"
)

func keyRun(runID string) []byte {
	return []byte(prefixRun + runID)
}

func keyEntry(runID, path string) []byte {
	return []byte(prefixEntry + runID + ":" + path)
}

func keyEntryPrefix(runID string) []byte {
	return []byte(prefixEntry + runID + ":")
}

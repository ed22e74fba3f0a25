// Package feature builds feature tables: one row per track with identity
// columns followed by numeric audio-feature columns.
package feature

// IdentityColumns are the leading columns of every table, in order.
// Feature columns start at offset len(IdentityColumns).
var IdentityColumns = []string{"track_name", "track_id", "artist", "album", "duration", "popularity"}

// Track holds the identity fields of a table row.
type Track struct {
	TrackName  string
	TrackID    string
	Artist     string // First credited artist
	Album      string
	Duration   int // Milliseconds
	Popularity int // 0-100
}

// RawEntry is a single catalog result before parsing.
// Track is nil for local files and unavailable tracks.
type RawEntry struct {
	Track *RawTrack
}

// RawTrack is the nested track object of a RawEntry.
type RawTrack struct {
	ID         string
	Name       string
	Artists    []string
	Album      string
	DurationMs int
	Popularity int
}

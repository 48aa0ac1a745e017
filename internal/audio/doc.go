// Package audio writes ID3 tags to MP3 files produced in audio mode.
//
// # ID3 Tagging
//
//	tagger := audio.NewTagger(audio.DefaultTagConfig())
//	err := tagger.SaveTags(path, audio.Metadata{
//	    Title:    title,
//	    Uploader: uploader,
//	    Uploaded: audio.ParseUploadDate("20240131"),
//	    Source:   url,
//	}, coverJPEG)
//
// The tagger supports:
//   - Artist (uploader), Album
//   - Title
//   - Year and recording date
//   - Source URL as a comment
//   - Cover Art (embedded in MP3)
//
// # Playlists
//
// PlaylistCreator writes the files finished in one run as M3U, PLS, WPL or
// ZPL:
//
//	items := []audio.PlaylistItem{audio.ItemFromMetadata(out, title, meta)}
//	content := audio.NewPlaylistCreator(audio.FormatM3U, true).CreatePlaylist("ytify", items)
package audio

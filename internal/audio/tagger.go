package audio

import (
	"fmt"
	"time"

	"github.com/bogem/id3v2"
)

// TagEditAction defines how to handle individual ID3 tags.
type TagEditAction int

const (
	// TagEmpty clears the tag value.
	TagEmpty TagEditAction = iota

	// TagModify updates the tag with the value from the video metadata.
	TagModify

	// TagDoNotModify leaves the existing tag value unchanged.
	TagDoNotModify
)

// TagConfig holds tagging configuration for each ID3 field.
//
// Example:
//
//	cfg := &TagConfig{
//	    Artist:   TagModify,      // Uploader becomes the artist
//	    Title:    TagModify,      // Video title
//	    Year:     TagModify,      // From the upload date
//	    Comments: TagModify,      // Source URL
//	    Album:    TagDoNotModify, // Keep whatever the extractor wrote
//	}
type TagConfig struct {
	// Artist controls the TPE1 (Lead artist) frame.
	Artist TagEditAction

	// Album controls the TALB (Album title) frame.
	Album TagEditAction

	// Title controls the TIT2 (Title) frame.
	Title TagEditAction

	// Year controls the TYER (Year) frame.
	Year TagEditAction

	// Date controls the TDRC (Recording time) frame (ID3v2.4).
	Date TagEditAction

	// Comments controls the COMM (Comments) frame, used for the source URL.
	Comments TagEditAction
}

// DefaultTagConfig returns the default tag configuration: every field is
// written from the metadata except Album, which is cleared.
func DefaultTagConfig() *TagConfig {
	return &TagConfig{
		Artist:   TagModify,
		Album:    TagEmpty,
		Title:    TagModify,
		Year:     TagModify,
		Date:     TagModify,
		Comments: TagModify,
	}
}

// Metadata is what a fetched video contributes to its MP3 tags.
type Metadata struct {
	Title    string
	Uploader string
	Uploaded time.Time
	Source   string
}

// ParseUploadDate parses the YYYYMMDD dates extractors report. Invalid
// input yields the zero time.
func ParseUploadDate(raw string) time.Time {
	t, err := time.Parse("20060102", raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Tagger writes ID3 tags to MP3 files produced in audio mode.
//
// Example:
//
//	tagger := NewTagger(DefaultTagConfig())
//	err := tagger.SaveTags("/downloads/clip.mp3", audio.Metadata{
//	    Title:    "Clip",
//	    Uploader: "Channel",
//	    Uploaded: audio.ParseUploadDate("20240131"),
//	    Source:   "https://www.youtube.com/watch?v=abc",
//	}, coverJPEG)
type Tagger struct {
	config *TagConfig
}

// NewTagger creates a new Tagger with the given configuration.
//
// If config is nil, DefaultTagConfig() is used.
func NewTagger(config *TagConfig) *Tagger {
	if config == nil {
		config = DefaultTagConfig()
	}
	return &Tagger{config: config}
}

// SaveTags writes meta and, when cover is non-nil, a front-cover picture to
// the MP3 at path.
func (t *Tagger) SaveTags(path string, meta Metadata, cover []byte) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open %s for tagging: %w", path, err)
	}
	defer tag.Close()

	t.updateStringTags(tag, meta)
	if cover != nil {
		t.updateArtwork(tag, cover)
	}

	return tag.Save()
}

func (t *Tagger) updateStringTags(tag *id3v2.Tag, meta Metadata) {
	switch t.config.Artist {
	case TagEmpty:
		tag.SetArtist("")
	case TagModify:
		tag.SetArtist(meta.Uploader)
	}

	switch t.config.Album {
	case TagEmpty:
		tag.SetAlbum("")
	case TagModify:
		tag.SetAlbum(meta.Uploader)
	}

	switch t.config.Title {
	case TagEmpty:
		tag.SetTitle("")
	case TagModify:
		tag.SetTitle(meta.Title)
	}

	switch t.config.Year {
	case TagEmpty:
		tag.DeleteFrames("TYER")
	case TagModify:
		if !meta.Uploaded.IsZero() {
			tag.AddTextFrame("TYER", id3v2.EncodingUTF8, meta.Uploaded.Format("2006"))
		}
	}

	switch t.config.Date {
	case TagEmpty:
		tag.DeleteFrames("TDRC")
	case TagModify:
		if !meta.Uploaded.IsZero() {
			tag.AddTextFrame("TDRC", id3v2.EncodingUTF8, meta.Uploaded.Format("2006-01-02"))
		}
	}

	switch t.config.Comments {
	case TagEmpty:
		tag.DeleteFrames(tag.CommonID("Comments"))
	case TagModify:
		if meta.Source != "" {
			tag.AddCommentFrame(id3v2.CommentFrame{
				Encoding:    id3v2.EncodingUTF8,
				Language:    "eng",
				Description: "source",
				Text:        meta.Source,
			})
		}
	}
}

func (t *Tagger) updateArtwork(tag *id3v2.Tag, artwork []byte) {
	tag.DeleteFrames(tag.CommonID("Attached picture"))
	tag.AddAttachedPicture(id3v2.PictureFrame{
		Encoding:    id3v2.EncodingUTF8,
		MimeType:    "image/jpeg",
		PictureType: id3v2.PTFrontCover,
		Description: "Cover",
		Picture:     artwork,
	})
}

// Package ytdlp runs the yt-dlp executable as the download fetcher.
//
// A Fetcher performs exactly one attempt per call. Retries, quality
// downgrades and proxy rotation are the orchestrator's job; the fetcher
// only turns a request into a yt-dlp invocation and reports progress.
//
// # Formats
//
//	best          bv*+ba/b
//	1080p..360p   bv*[height<=H]+ba/b[height<=H]
//	other         passed through as a format selector
//
// Audio mode extracts MP3 at the best quality, then tags it with the
// uploader, title, upload date and the thumbnail as front cover.
//
// # Output
//
// yt-dlp prints one tab-separated line after the final move; the fetcher
// reads the file path, id, title, uploader, upload date and thumbnail URL
// from it. Progress comes from the [download] lines.
package ytdlp

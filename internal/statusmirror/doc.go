// Package statusmirror mirrors job status events into Redis.
//
// Each job gets a hash at job:<id> with its latest status, progress and,
// once it fails, the classified error. Hashes expire a day after their last
// update.
package statusmirror

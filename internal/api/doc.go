// Package api serves the download service over HTTP and websockets.
//
// # Routes
//
//	GET    /health                    {"status":"ok","version":...}
//	POST   /api/download              submit {"url","format","audio_only"}
//	GET    /api/status/{id}           job state, queue position, retry session
//	GET    /api/status, /api/queue    running/queued counters and wait list
//	GET    /api/jobs                  every job in memory, newest first
//	DELETE /api/jobs/{id}             cancel a queued or running job
//	GET    /api/proxies               egress pool statistics
//	DELETE /api/proxies/bad           clear the proxy blacklist
//	GET    /api/history               recent finished downloads (?limit=)
//	DELETE /api/history               clear the history
//	GET    /api/files                 media in the downloads directory
//	DELETE /api/files/{name}          delete one file
//	GET    /api/download-file/{name}  fetch one file
//	GET    /ws, /ws/{id}              status events, all jobs or one job
//
// Errors are JSON objects with a "detail" field.
package api

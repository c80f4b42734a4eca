// Package api serves the splicer HTTP interface.
//
// Routes are registered on a gorilla/mux router:
//
//	POST /episodes                       create a draft episode
//	GET  /episodes/{id}                  full episode record
//	POST /episodes/{id}/assemble         queue assembly, 202 with job handle
//	GET  /episodes/{id}/status           {state, message}
//	POST /episodes/{id}/publish          processed -> published
//	POST /commands/detect                detect commands on a media item
//	GET  /commands/{id}                  one command
//	POST /commands/{id}/execute          bound, confirm and resolve an insert
//	POST /media/{id}/transcribe          enqueue asynchronous transcription
//	POST /media/{id}/transcribed         provider callback with words
//	GET  /healthz                        workflow health
//
// When a token is configured every route except /healthz requires
// "Authorization: Bearer <token>". POST routes share a per-client token
// bucket. Errors are JSON {"error": message} with the status chosen from
// the services error markers.
package api

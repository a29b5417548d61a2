// Package server implements the JSON-RPC host surface of the image view
// bridge.
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: responses and notifications on stdout (one per line)
//
// Logs never go to stdout.
//
// # Methods
//
// Protocol:
//   - initialize: Handshake
//   - ping: Health check
//   - methods/list: Enumerate the methods below
//
// Views:
//   - view/create {viewId, render?}: Bind a view
//   - view/update {viewId, props}: Merge a props fragment and reissue
//   - view/drop {viewId}: Tear a view down
//
// Loader and cache:
//   - loader/setOptions {options}
//   - loader/prefetch {sources, loadTo}
//   - cache/clearAll, cache/clearMemory, cache/clearDisk
//   - cache/createKey {value}
//
// # Notifications
//
// view/event carries {viewId, event, payload?} where event is one of
// onCoilStart, onCoilCancel, onCoilError or onCoilSuccess. Events for a
// view arrive in the order the engine reported them, and never for a load
// the view has since replaced.
//
// view/image carries {viewId, kind, width, height, image_base64,
// mime_type} for views created with render set.
//
// # Error Handling
//
// Rejected props return code -32602 with data {kind, field, detail}; the
// view keeps its previous configuration and in-flight load. Engine-side
// failures of static calls return -32000. Load failures are never errors
// on the request; they arrive as onCoilError events.
//
// # Usage
//
//	srv := server.New(coord, eng, server.WithLogger(log))
//	if err := srv.Run(); err != nil {
//	    log.Fatal().Err(err).Send()
//	}
package server

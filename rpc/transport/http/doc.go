// Package http serves the MikeDB REST api and provides the matching client transport.
//
// Routes (all below BasePath "/api"):
//
//	GET    /{db}/{key}         value, projected with ?fields=a,b and paged with
//	                           ?firstResult=&maxResults=; HEAD answers X-Total-Count
//	GET    /{db}/{key}/{id}    list entry by id (also ?id=)
//	PUT    /{db}/{key}         replace
//	POST   /{db}/{key}         append to a list, at ?index= if given; files replace
//	PATCH  /{db}/{key}         update by ?index= or by the id of the body;
//	                           application/merge-patch+json merges into an object
//	DELETE /{db}/{key}         remove the key, or the element at ?index= / ?id=
//	DELETE /{db}               drop the database
//
// Requests carry their API key in the API_KEY header and an optional SESSION_ID
// which is echoed in change events. Bodies are JSON by default, text/plain is
// stored as a string and multipart/form-data uploads the "file" part.
//
// Key Components:
//
//   - Handler: routes and authorizes requests against an IDataStore and an
//     IAccessChecker, maps store errors to status codes and records metrics.
//   - RateLimiter: optional token bucket per API key (or client address).
//   - ClientTransport: sends requests to one server over TCP or a unix socket,
//     retrying connection failures.
package http

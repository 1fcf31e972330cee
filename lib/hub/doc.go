/*
Package hub delivers database changes to live connections.

Every connection attached to a database is a Subscriber with its own lock-free
queue and writer goroutine. Writers never block on a slow connection; messages
reach one subscriber in the order they were queued, with no ordering across
subscribers.

Protocol (see Serve):

	client: {"API_KEY":"..."}
	server: {"event":"NEW","sessionId":"..."}
	server: {"event":"OPENED","sessionId":"..."}      (to every subscriber)
	server: {"event":"UPDATED","sessionId":"...","dbName":"...","key":"...","value":...}
	client: PING
	server: PONG

A failed handshake is answered with {"event":"ERROR",...} and the connection is
closed.
*/
package hub

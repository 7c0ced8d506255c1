// Package api implements the leaderboard read API for challengeboard-server.
//
// New returns an http.Handler backed by a gin engine that serves one route:
//
//	GET /   the published monthly rankings ([]MonthResponse)
//
// Responses:
//   - 202 with an empty body until SetSource is called (store still opening)
//   - 500 with an empty body when the store read fails
//   - 200 with JSON and Access-Control-Allow-Origin: * otherwise
//   - 405 for any other method on /
//
// CORS preflight requests are answered by gin-contrib/cors for any origin.
package api

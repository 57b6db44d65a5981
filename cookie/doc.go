// Package cookie emits and reads the HttpOnly cookie that carries the refresh
// credential between the browser and the server.
package cookie

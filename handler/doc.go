// Package handler serves the session-management endpoints:
//
//	POST /auth/login    {"username","password"} -> {"accessToken"} + refresh cookie
//	POST /auth/logout   Authorization: Bearer   -> "Logout successful", cookie cleared
//	POST /auth/refresh  {"refreshToken"} or cookie -> {"accessToken","refreshToken"} + cookie
//
// Every credential failure answers 401 "unauthorized". Each client IP is
// throttled with a token bucket before the engine is called.
package handler

// Package httputil provides the JSON response envelope shared by all API
// handlers. Success bodies always carry success=true; error bodies carry
// success=false plus a machine error and a human message, so cron callers
// and the frontend can branch without inspecting status codes.
package httputil

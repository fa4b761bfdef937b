// Package provider defines the interface for completion backends. The
// engine talks to backends only through Request, Result and Event, keeping
// backend wire formats (fal.ai queue/run endpoints, SSE framing, auth
// headers) inside the adapter packages.
package provider

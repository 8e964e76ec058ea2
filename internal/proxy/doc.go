// Package proxy fetches a page server-side and rewrites it so a browser can
// render it inside a frame served from this origin.
//
// Relative href and src attributes are resolved against the target's origin
// and pointed back through the proxy path. A base element is added right
// after the opening head tag so anything the rewrite missed still resolves
// against the original site. Scripts are not touched.
package proxy

// Package circuitbreaker stops the proxy from hammering upstream hosts that
// keep failing.
//
// A breaker starts closed. After threshold consecutive failures it opens and
// refuses fetches until the cooldown passes, then lets a single trial through
// (half-open). A successful trial closes it again; a failed one reopens it.
//
//	breakers := circuitbreaker.NewRegistry(5, 30*time.Second)
//	b := breakers.Get("example.com")
//	if b.Allow() {
//	    if err := fetch(); err != nil {
//	        b.RecordFailure()
//	    } else {
//	        b.RecordSuccess()
//	    }
//	}
package circuitbreaker

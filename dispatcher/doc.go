// Package dispatcher decouples many concurrent HTTP callers from one
// serialized, high-latency scoring backend.
//
// Each caller wraps its texts in a WorkItem together with a private result
// channel and puts it on the dispatch queue. A single batch worker takes items
// off the queue in arrival order, makes exactly one backend call per item and
// writes one Reply per text back to that item's channel, in input order.
//
// Backend failures, panics and short result sets are routed back to the
// affected caller as a *BackendError on every reply; the worker keeps running.
//
//	d := dispatcher.New(backend, dispatcher.WithQueueSize(256))
//	d.Start(ctx)
//	results, err := d.Submit(r.Context(), texts)
package dispatcher

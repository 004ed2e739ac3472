// Package jsvm evaluates challenge pages in an embedded JavaScript engine.
//
// It is the fallback used when a challenge script no longer matches the
// regular-expression grammar: the page's inline scripts run against small
// document, window, navigator and timer stubs, queued timers are drained, and
// the final value of document.cookie is returned. Two engines are available,
// otto and goja, selected by name through New. Every evaluation is bounded by
// a timeout and by the caller's context.
package jsvm

// Package invoke sends requests to the model service with bounded retries and
// tier fallback.
//
// Failures are classified into an [ErrorKind]. Timeouts and unclassified
// failures are retried on the same tier with a fixed delay. A quota or
// rate-limit rejection is an exhausted external resource rather than a
// transient fault, so it is never retried on the same tier: the invoker makes
// a single attempt on the fallback tier, if one is configured, and otherwise
// fails. Unauthorized failures are terminal immediately.
//
// Every [Response] names the tier that produced it.
package invoke

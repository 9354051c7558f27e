// Package parse recovers structured data from raw model output. Language
// models routinely wrap JSON in narrative prose or markdown code fences, and
// they often break string escaping along the way, so this package applies a
// layered recovery strategy: fence stripping, brace trimming, escape repair,
// brace counting, and finally automatic JSON repair.
//
// The main entry point is [Extract], which never fails loudly: when nothing
// can be recovered it reports ok=false together with an empty object, and the
// caller treats that as a "no data" outcome. [ExtractAs] layers typed decoding
// on top of it.
package parse

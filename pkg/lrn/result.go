// Package lrn defines the lookup result format returned by the LRN service
// and the sentinel used for numbers that could not be resolved.
//
// A successful result is plain text in "LRN;SPID" form, for example
// "8542850999;616J". A failed lookup is reported as "<number>;error" so
// callers always receive a value for every number they asked for.
package lrn

import "strings"

// ErrorSuffix marks a result that carries no routing data.
const ErrorSuffix = ";error"

// ErrorResult returns the sentinel result for a number that could not be resolved.
func ErrorResult(number string) string {
	return number + ErrorSuffix
}

// IsError reports whether result is a sentinel error result.
func IsError(result string) bool {
	return strings.HasSuffix(result, ErrorSuffix)
}

// Parse splits a raw result into its LRN and SPID parts.
// A result without a separator is returned whole as the LRN with an empty SPID.
func Parse(result string) (lrn, spid string) {
	lrn, spid, found := strings.Cut(result, ";")
	if !found {
		return result, ""
	}
	return lrn, spid
}

// Result is the structured form of a lookup result.
type Result struct {
	Number string `json:"number"`
	LRN    string `json:"lrn,omitempty"`
	SPID   string `json:"spid,omitempty"`
	Raw    string `json:"raw"`
	Error  bool   `json:"error"`
}

// NewResult builds a Result from the raw value returned for number.
func NewResult(number, raw string) Result {
	r := Result{Number: number, Raw: raw}
	if IsError(raw) {
		r.Error = true
		return r
	}
	r.LRN, r.SPID = Parse(raw)
	return r
}

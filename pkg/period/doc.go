// Package period maps instants onto rollup buckets.
//
// # Conventions
//
// All bucket arithmetic happens in UTC regardless of the location of the input.
// Weeks follow ISO-8601 and start on Monday. Monthly buckets begin on the first
// calendar day at midnight.
//
//	start, end := period.Bounds(period.Weekly, time.Now())
//	prev := period.PreviousBucketStart(period.Weekly, start)
//
// Unknown tags from callers are rejected by Parse; the bucket functions panic on
// a Granularity that did not come from Parse or one of the constants.
package period

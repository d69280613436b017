// Package output renders command results for the timemachine CLI.
//
// Results are written as a table (the default), JSON or YAML. Types that
// implement Tabler choose their own table layout; anything else falls back
// to a FIELD/VALUE listing.
package output

// Package interval reads genomic intervals from BED and bedGraph text, and
// parses samtools-style region strings.  All coordinates it returns are
// 0-based and half-open.
package interval

// Package ingest streams interval records from BED, bedGraph and BAM files
// into summary trees and array trees.
package ingest

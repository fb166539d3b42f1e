package main

// bio-summarytree builds and queries hierarchical coverage indexes of BED and
// BAM files, and summarizes bedGraph signal tracks.

import (
	"github.com/galaxyproject/galaxy-sub043/cmd/bio-summarytree/cmd"
)

func main() {
	cmd.Run()
}

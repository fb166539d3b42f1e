package interval

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// MaxPos is the end of a region string that names a whole contig.
const MaxPos = math.MaxInt32 - 1

// ParseRegionString parses a region string of one of the forms
//
//	[contig ID]:[1-based first pos]-[last pos]
//	[contig ID]:[1-based pos]
//	[contig ID]
//
// returning a contig ID and 0-based interval boundaries.  The interval
// [0, MaxPos) is returned if there is no positional restriction.  Commas in
// positions are ignored.
func ParseRegionString(region string) (result Entry, err error) {
	if len(region) == 0 {
		return result, invalidRegion("empty region string")
	}
	colonPos := strings.LastIndexByte(region, ':')
	if colonPos == -1 {
		result.ChrName = region
		result.End = MaxPos
		return
	}
	if colonPos == 0 {
		return result, invalidRegion("empty contig ID in %q", region)
	}
	result.ChrName = region[:colonPos]
	rangeStr := strings.Replace(region[colonPos+1:], ",", "", -1)
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		pos1, err := strconv.ParseInt(rangeStr, 10, 64)
		if err != nil || pos1 <= 0 {
			return result, invalidRegion("position %q out of range", rangeStr)
		}
		result.Start0, result.End = pos1-1, pos1
		return result, nil
	}
	start1, err := strconv.ParseInt(rangeStr[:dashPos], 10, 64)
	if err != nil || start1 <= 0 {
		return result, invalidRegion("position %q out of range", rangeStr[:dashPos])
	}
	end, err := strconv.ParseInt(rangeStr[dashPos+1:], 10, 64)
	if err != nil || end < start1 {
		return result, invalidRegion("invalid range string %q", rangeStr)
	}
	result.Start0, result.End = start1-1, end
	return result, nil
}

func invalidRegion(msg string, args ...interface{}) error {
	return errors.E(errors.Invalid, "interval.ParseRegionString: "+fmt.Sprintf(msg, args...))
}

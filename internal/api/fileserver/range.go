package fileserver

import (
	"strconv"
	"strings"
)

// ByteRange is an inclusive byte interval validated against a file size.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ParseRange resolves a single "<start>-<end>" or "<start>-" specifier (the
// part after "bytes=") against a file of the given size. Anything else,
// including suffix ranges and multi-range lists, is reported as not ok.
func ParseRange(spec string, size int64) (ByteRange, bool) {
	if size <= 0 {
		return ByteRange{}, false
	}

	parts := strings.Split(spec, "-")
	if len(parts) != 2 {
		return ByteRange{}, false
	}

	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 {
		return ByteRange{}, false
	}

	end := size - 1
	if parts[1] != "" {
		end, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil || end < 0 {
			return ByteRange{}, false
		}
	}

	if start > end || end >= size {
		return ByteRange{}, false
	}
	return ByteRange{Start: start, End: end}, true
}

// rangeFromHeader strips the bytes unit from a Range header value before
// handing it to ParseRange.
func rangeFromHeader(value string, size int64) (ByteRange, bool) {
	spec, ok := strings.CutPrefix(value, "bytes=")
	if !ok {
		return ByteRange{}, false
	}
	return ParseRange(spec, size)
}

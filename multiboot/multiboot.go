// Package multiboot reads the boot information block that a multiboot2
// loader hands to the kernel. Only the string tags that the device layer
// consumes are decoded.
package multiboot

import (
	"strings"
	"unsafe"
)

type tagType uint32

const (
	tagEnd        tagType = 0
	tagCmdLine    tagType = 1
	tagLoaderName tagType = 2
)

// The info block starts with total_size and reserved (both uint32) and every
// tag starts with type and size (both uint32). Tags are padded to 8 bytes.
const (
	infoHeaderSize = 8
	tagHeaderSize  = 8
	tagAlign       = 8
)

var (
	infoPtr uintptr

	// cmdLine caches the decoded command line.
	cmdLine map[string]string
)

// SetInfoPtr records the address of the info block. It must be called before
// any other function in this package and it drops any cached results.
func SetInfoPtr(ptr uintptr) {
	infoPtr = ptr
	cmdLine = nil
}

// GetBootCmdLine returns the kernel command line as key/value pairs. The
// result is cached so the map is only allocated once.
func GetBootCmdLine() map[string]string {
	if cmdLine == nil {
		cmdLine = ParseCmdLine(stringTag(tagCmdLine))
	}
	return cmdLine
}

// BootLoaderName returns the loader name tag or "" when there is none.
func BootLoaderName() string {
	return stringTag(tagLoaderName)
}

// ParseCmdLine splits cmdLine on whitespace. "key=value" maps key to value and
// a bare "flag" maps flag to itself. Words containing more than one '=' are
// dropped.
func ParseCmdLine(cmdLine string) map[string]string {
	kv := make(map[string]string)
	for _, word := range strings.Fields(cmdLine) {
		key, value, found := strings.Cut(word, "=")
		switch {
		case !found:
			kv[word] = word
		case !strings.Contains(value, "="):
			kv[key] = value
		}
	}
	return kv
}

// stringTag returns the NUL-terminated payload of the first tag of type want.
func stringTag(want tagType) string {
	payload := findTag(want)
	if i := indexNUL(payload); i >= 0 {
		payload = payload[:i]
	}
	return string(payload)
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

// findTag walks the tag list and returns the payload of the first tag of type
// want. It returns nil when the info pointer is unset or no tag matches.
func findTag(want tagType) []byte {
	if infoPtr == 0 {
		return nil
	}

	for ptr := infoPtr + infoHeaderSize; ; {
		typ := *(*tagType)(unsafe.Pointer(ptr))
		size := *(*uint32)(unsafe.Pointer(ptr + 4))

		switch {
		case typ == tagEnd:
			return nil
		case size < tagHeaderSize:
			// malformed tag; stop rather than loop forever
			return nil
		case typ == want:
			return unsafe.Slice((*byte)(unsafe.Pointer(ptr+tagHeaderSize)), size-tagHeaderSize)
		}

		ptr += (uintptr(size) + tagAlign - 1) &^ (tagAlign - 1)
	}
}

package transport

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// frameDecoder splits raw transport chunks into messages. With length
// tracking on, messages are framed as "<length>|<payload>" and a frame may
// span several chunks. The length counts UTF-16 code units, as the server
// measures strings, not bytes.
type frameDecoder struct {
	track   bool
	pending string
}

func (d *frameDecoder) decode(chunk string) []string {
	if !d.track {
		if isPadding(chunk) {
			return nil
		}
		return []string{chunk}
	}

	d.pending += chunk
	var messages []string
	for {
		trimmed := strings.TrimLeft(d.pending, " \t\r\n")
		sep := strings.IndexByte(trimmed, '|')
		if sep < 0 {
			if isPadding(trimmed) {
				d.pending = ""
			}
			return messages
		}

		size, err := strconv.Atoi(trimmed[:sep])
		if err != nil || size < 0 {
			// not a tracked frame, hand it over as is
			d.pending = ""
			if !isPadding(trimmed) {
				messages = append(messages, trimmed)
			}
			return messages
		}

		rest := trimmed[sep+1:]
		if utf16Len(rest) < size {
			d.pending = trimmed
			return messages
		}

		cut := byteOffset(rest, size)
		if msg := rest[:cut]; !isPadding(msg) {
			messages = append(messages, msg)
		}
		d.pending = rest[cut:]
	}
}

func (d *frameDecoder) reset() {
	d.pending = ""
}

// utf16Len returns the length of s in UTF-16 code units.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += unitLen(r)
	}
	return n
}

// byteOffset returns the byte offset in s after units UTF-16 code units.
func byteOffset(s string, units int) int {
	for i, r := range s {
		if units <= 0 {
			return i
		}
		units -= unitLen(r)
	}
	return len(s)
}

func unitLen(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

func isPadding(s string) bool {
	return strings.TrimSpace(s) == ""
}

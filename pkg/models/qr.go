package models

import "strings"

const qrPrefix = "LIBTRACK:BOOK:"

// QRPayload is the text encoded into a book's QR label.
func QRPayload(bookID string) string {
	return qrPrefix + bookID
}

// ParseQRPayload extracts the book id from a scanned label. Bare ids are
// accepted as well so hand-typed lookups keep working.
func ParseQRPayload(payload string) (string, bool) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", false
	}
	if id, ok := strings.CutPrefix(payload, qrPrefix); ok {
		return id, id != ""
	}
	if strings.Contains(payload, ":") {
		return "", false
	}
	return payload, true
}

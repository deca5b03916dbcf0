package ldap

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// EntryAttributes flattens an entry into name to values. Values keep their
// raw bytes so they can be written back unchanged; use DecodeValue to display
// them.
func EntryAttributes(entry *ldap.Entry) map[string][]string {
	attrs := make(map[string][]string, len(entry.Attributes))
	for _, attr := range entry.Attributes {
		values := make([]string, 0, len(attr.ByteValues))
		for _, raw := range attr.ByteValues {
			values = append(values, string(raw))
		}
		attrs[attr.Name] = values
	}
	return attrs
}

// DecodeValue renders a raw attribute value as text. objectGUID and objectSid
// use their canonical string forms; other values that are not valid UTF-8 are
// base64 encoded.
func DecodeValue(name string, raw []byte) string {
	switch {
	case strings.EqualFold(name, "objectGUID"):
		if s, ok := decodeGUID(raw); ok {
			return s
		}
	case strings.EqualFold(name, "objectSid"):
		if s, ok := decodeSID(raw); ok {
			return s
		}
	}

	if utf8.Valid(raw) {
		return string(raw)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// decodeGUID converts the mixed-endian on-wire GUID layout to RFC 4122 text.
func decodeGUID(raw []byte) (string, bool) {
	if len(raw) != 16 {
		return "", false
	}

	b := []byte{
		raw[3], raw[2], raw[1], raw[0],
		raw[5], raw[4],
		raw[7], raw[6],
	}
	b = append(b, raw[8:]...)

	id, err := uuid.FromBytes(b)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func decodeSID(raw []byte) (string, bool) {
	// revision, sub-authority count, 6-byte authority, then 4 bytes each.
	if len(raw) < 8 || len(raw) != 8+4*int(raw[1]) {
		return "", false
	}
	return objectsid.Decode(raw).String(), true
}

package models

import (
	"fmt"
	"strconv"
	"strings"
)

// pageSeparator joins a corpus file name and a zero-based page index in stored ids.
const pageSeparator = "_page_"

// PageKey identifies one page of one corpus document. Its string form is the
// id stored next to the page embedding, "<document>_page_<index>".
type PageKey struct {
	Document string `json:"document"`
	Page     int    `json:"page"`
	// HasPage is false when the key was decoded from an id without a page suffix.
	HasPage bool `json:"has_page"`
}

// NewPageKey builds the key of page `page` of `document`.
func NewPageKey(document string, page int) PageKey {
	return PageKey{Document: document, Page: page, HasPage: true}
}

// String encodes the key. Keys without a page encode to the bare document name.
func (k PageKey) String() string {
	if !k.HasPage {
		return k.Document
	}
	return fmt.Sprintf("%s%s%d", k.Document, pageSeparator, k.Page)
}

// ParsePageKey decodes an id produced by PageKey.String. The split happens on the
// last separator so document names that themselves contain "_page_" survive.
// When the id does not carry a valid page suffix the whole id becomes the
// document and ok is false.
func ParsePageKey(id string) (key PageKey, ok bool) {
	i := strings.LastIndex(id, pageSeparator)
	if i <= 0 {
		return PageKey{Document: id}, false
	}
	digits := id[i+len(pageSeparator):]
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return PageKey{Document: id}, false
	}
	page, err := strconv.Atoi(digits)
	if err != nil {
		return PageKey{Document: id}, false
	}
	return PageKey{Document: id[:i], Page: page, HasPage: true}, true
}

package conversation

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Message content is an opaque string. The only structure the core knows about
// are the section markers below, which let it build content the view layer can
// split again. Nothing in this module parses content back.
const (
	BlocksMarker = ":::blocks"
	VideosMarker = ":::videos"
)

// EncodeBlocks wraps a structured block sequence into the block payload
// convention.
func EncodeBlocks(blocks any) (string, error) {
	b, err := json.Marshal(blocks)
	if err != nil {
		return "", errors.Wrap(err, "could not encode block payload")
	}
	return BlocksMarker + "\n" + string(b), nil
}

// VideoSection renders an enrichment section. A nil or empty list still yields
// a section, so that a failed enrichment is visible as an empty one.
func VideoSection(videos any) string {
	b, err := json.Marshal(videos)
	if err != nil || string(b) == "null" {
		b = []byte("[]")
	}
	return "\n" + VideosMarker + "\n" + string(b)
}

// AppendVideos appends an enrichment section to existing content.
func AppendVideos(content string, videos any) string {
	return content + VideoSection(videos)
}

// PlainPrefix returns the text that precedes the first section marker, with
// whitespace collapsed.
func PlainPrefix(content string) string {
	head := content
	for _, marker := range []string{BlocksMarker, VideosMarker} {
		if idx := strings.Index(head, marker); idx >= 0 {
			head = head[:idx]
		}
	}
	return strings.Join(strings.Fields(head), " ")
}

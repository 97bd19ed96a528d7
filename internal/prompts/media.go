package prompts

import "fmt"

// Media kinds accepted on an inbound message.
const (
	MediaImage    = "image"
	MediaAudio    = "audio"
	MediaDocument = "document"
)

// mediaNoteTemplate describes an attachment the model cannot read
// directly. Format verbs: (1) media kind, (2) URL.
const mediaNoteTemplate = `[The user attached a %s: %s. You cannot open it. If it matters, ask the user what it contains, or store the URL as an item's media_url.]`

// MediaNote returns the text appended to a user turn for an attachment
// that is not passed to the model as an image. It returns "" when url
// is empty.
func MediaNote(kind, url string) string {
	if url == "" {
		return ""
	}
	if kind == "" {
		kind = "file"
	}
	return fmt.Sprintf(mediaNoteTemplate, kind, url)
}

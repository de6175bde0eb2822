package session

// Session is the persisted record of one named batch of generations.
type Session struct {
	ID             string   `json:"id"`
	CreatedAt      string   `json:"created_at"`
	Name           string   `json:"name"`
	PersonaID      string   `json:"persona_id"`
	TextType       string   `json:"text_type"`
	TextContent    string   `json:"text_content"`
	VoicesTested   []string `json:"voices_tested"`
	Favorites      []string `json:"favorites"`
	GeneratedFiles []string `json:"generated_files"`
}

// CreateRequest carries the fields of a new session. Voices and Files
// optionally seed the record.
type CreateRequest struct {
	Name        string   `json:"name"`
	PersonaID   string   `json:"persona_id"`
	TextType    string   `json:"text_type"`
	TextContent string   `json:"text_content"`
	Voices      []string `json:"voices"`
	Files       []string `json:"files"`
}

// DefaultTextType is used when a create request leaves the text type empty.
const DefaultTextType = "demo"

// appendUnique appends each value not already present, preserving order.
func appendUnique(list []string, values ...string) []string {
	for _, value := range values {
		if !contains(list, value) {
			list = append(list, value)
		}
	}

	return list
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}

	return false
}

func (s *Session) normalize() {
	if s.VoicesTested == nil {
		s.VoicesTested = []string{}
	}

	if s.Favorites == nil {
		s.Favorites = []string{}
	}

	if s.GeneratedFiles == nil {
		s.GeneratedFiles = []string{}
	}
}

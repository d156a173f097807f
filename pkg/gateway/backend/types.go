package backend

// Decision classifies the terminal outcome of an exchange.
type Decision string

const (
	DecisionAnswer  Decision = "answer"
	DecisionHandoff Decision = "handoff"
)

// Document is one ranked retrieval result.
type Document struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Citation references a source document backing an answer.
type Citation struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// Answer is the terminal payload of one exchange.
type Answer struct {
	Decision  Decision   `json:"decision"`
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
}

// Message is one conversation turn passed to the generation backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CitationsFromDocuments converts ranked documents into citations,
// preserving rank order.
func CitationsFromDocuments(docs []Document) []Citation {
	if len(docs) == 0 {
		return nil
	}
	out := make([]Citation, len(docs))
	for i, d := range docs {
		out[i] = Citation{ID: d.ID, Title: d.Title}
	}
	return out
}

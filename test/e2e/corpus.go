// Package e2e runs the upload, ingestion and chat pipeline end to end over real storage,
// the SQLite queue and the local vector index.
package e2e

// CorpusDocument is a PDF in the test corpus, one string per page.
type CorpusDocument struct {
	Filename string
	Pages    []string
}

// Question is asked after the corpus is ingested. The first source of the answer must
// point at ExpectedFile and ExpectedPage.
type Question struct {
	Text         string
	ExpectedFile string
	ExpectedPage int
}

// Corpus holds the documents and the questions asked about them.
type Corpus struct {
	Documents []CorpusDocument
	Questions []Question
}

// BuildCorpus returns a small corpus whose questions each share most of their terms
// with exactly one page.
func BuildCorpus() Corpus {
	return Corpus{
		Documents: []CorpusDocument{
			{
				Filename: "astronomy.pdf",
				Pages: []string{
					"The sky is blue because air scatters sunlight.",
					"Mars appears red because iron oxide dust covers its surface.",
				},
			},
			{
				Filename: "kitchen.pdf",
				Pages: []string{
					"Water boils at 100°C at sea level.",
					"Bread dough rises when yeast ferments sugar into gas.",
					"Cast iron pans should be dried right after washing.",
				},
			},
			{
				Filename: "geography.pdf",
				Pages: []string{
					"Mount Everest is the tallest mountain on Earth.",
				},
			},
		},
		Questions: []Question{
			{Text: "Why is the sky blue?", ExpectedFile: "astronomy.pdf", ExpectedPage: 1},
			{Text: "Why does Mars appear red?", ExpectedFile: "astronomy.pdf", ExpectedPage: 2},
			{Text: "At what temperature does water boil?", ExpectedFile: "kitchen.pdf", ExpectedPage: 1},
			{Text: "What makes bread dough rise?", ExpectedFile: "kitchen.pdf", ExpectedPage: 2},
			{Text: "Which mountain is the tallest on Earth?", ExpectedFile: "geography.pdf", ExpectedPage: 1},
		},
	}
}

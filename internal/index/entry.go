package index

// Scope tags an entry with the document it was ingested from.
type Scope struct {
	OwnerID    string `json:"owner_id"`
	DocumentID string `json:"document_id"`
}

type Item struct {
	Text  string
	Scope Scope
}

// Entry is immutable once added. Seq is the insertion order and breaks
// score ties.
type Entry struct {
	ID     string    `json:"id"`
	Seq    uint64    `json:"seq"`
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
	Scope  Scope     `json:"scope"`
	Ctime  int64     `json:"ctime"`
}

type Hit struct {
	Entry
	Score float32 `json:"score"`
}

package vectorstore

import "testing"

func TestDebugInsert(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil { t.Fatal(err) }
	err = s.AddRecord("c1", Record{ID: "1", Document: "doc", Embedding: []float32{1,2,3}})
	if err != nil { t.Fatal(err) }
}

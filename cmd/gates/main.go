package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tas-ingestion/ingestion/internal/gates"
)

func main() {
	releasesRoot := flag.String("releases-root", "./data/releases", "releases root")
	canonicalRoot := flag.String("canonical-root", "./data/canonical", "canonical store root")
	chunksRoot := flag.String("chunks-root", "./data/chunks", "chunk store root")
	embeddingsRoot := flag.String("embeddings-root", "./data/embeddings", "embeddings root")
	vectorRoot := flag.String("vector-root", "./data/vector_index", "vector index root")
	flag.Parse()

	issues := gates.RunAll(gates.Roots{
		ReleasesRoot:   *releasesRoot,
		CanonicalRoot:  *canonicalRoot,
		ChunksRoot:     *chunksRoot,
		EmbeddingsRoot: *embeddingsRoot,
		VectorRoot:     *vectorRoot,
	})

	if len(issues) == 0 {
		os.Exit(0)
	}

	fmt.Println("Ingestion gates failed with issues:")
	for _, it := range issues {
		loc := ""
		if it.Path != "" {
			loc = fmt.Sprintf(" (%s)", it.Path)
		}
		fmt.Printf("- %s: %s%s\n", it.Code, it.Message, loc)
	}
	os.Exit(2)
}

// Package tools holds the immutable tool catalog exposed by maps-gateway and the
// in-band result shape every tool call produces.
//
// # Catalog
//
// The catalog is built once at startup with NewRegistry and never mutated:
//
//	registry := tools.NewCatalog()
//	for _, d := range registry.List() {
//	    fmt.Println(d.Name)
//	}
//
// List always returns the descriptors in registration order, so tools/list
// answers are identical across bindings and calls.
//
// # Results
//
// Tool failures are reported inside a successful protocol envelope:
//
//	{"content": [{"type": "text", "text": "No results found"}], "isError": true}
//
// Use TextResult, ImageResult and ErrorResult to build them.
package tools

package als

import (
	"compress/gzip"
	"fmt"
	"os"

	"github.com/beevik/etree"
)

// DecodeError reports that the container itself could not be read: the
// file is missing, is not gzip, or the payload is not well-formed XML.
// Callers must treat it as "no metadata available" and skip the file.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// decodeTree decompresses the gzip container at path and parses the XML
// payload into an element tree.
func decodeTree(path string) (*etree.Element, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("not a gzip container: %w", err)}
	}
	defer gz.Close()

	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(gz); err != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("malformed XML: %w", err)}
	}

	root := doc.Root()
	if root == nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("empty XML document")}
	}

	return root, nil
}

// walk visits el and all its descendants in document order. The visitor
// returns false to stop the walk early.
func walk(el *etree.Element, visit func(*etree.Element) bool) bool {
	if !visit(el) {
		return false
	}
	for _, child := range el.ChildElements() {
		if !walk(child, visit) {
			return false
		}
	}
	return true
}

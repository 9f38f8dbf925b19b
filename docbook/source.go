package docbook

import (
	"fmt"
	"io"
	"os"

	"github.com/midbel/docbook/xml"
)

// OpenSource opens the document at sourcePath for a single pass of reading.
// External entities, the document type and XInclude references are resolved
// with resolver first. The returned closer releases the file.
func OpenSource(sourcePath string, xIncludeAware bool, resolver xml.Resolver) (*xml.Reader, io.Closer, error) {
	if sourcePath == "" {
		return nil, nil, inputError("open", sourcePath, fmt.Errorf("source document not given"))
	}
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, nil, inputError("open", sourcePath, err)
	}
	if !info.Mode().IsRegular() {
		return nil, nil, inputError("open", sourcePath, fmt.Errorf("not a regular file"))
	}
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, nil, inputError("open", sourcePath, err)
	}
	opts := []xml.ReaderOption{
		xml.WithLocation(sourcePath),
		xml.WithXInclude(xIncludeAware),
	}
	if resolver != nil {
		opts = append(opts, xml.WithResolver(resolver))
	}
	return xml.NewReader(f, opts...), f, nil
}

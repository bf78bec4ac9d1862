package raster

import (
	"bytes"
	"os"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tserrors"
)

// Open sniffs the file's leading bytes and dispatches to the matching
// adapter. Unknown formats are an ingestion failure, not a panic path.
func Open(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	magic := make([]byte, 9)
	n, _ := f.Read(magic)
	f.Close()
	magic = magic[:n]

	switch {
	case bytes.HasPrefix(magic, []byte("NITF")):
		return OpenNITF(path)
	case bytes.HasPrefix(magic, []byte("II*\x00")) || bytes.HasPrefix(magic, []byte("MM\x00*")):
		return OpenGeoTIFF(path)
	default:
		return nil, tserrors.New(tserrors.KindIngestionFailure,
			"unrecognized raster format in %s", path)
	}
}

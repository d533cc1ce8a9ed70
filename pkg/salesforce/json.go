package salesforce

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/rotisserie/eris"
)

// maxResponseBytes caps a decoded REST body. Full describes of wide objects
// run to a few MB.
const maxResponseBytes = 32 << 20

// decodeResponse decodes the REST body fetched from uri into out.
func decodeResponse(r io.Reader, uri string, out any) error {
	dec := json.NewDecoder(io.LimitReader(r, maxResponseBytes))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return eris.Errorf("sf: %s returned an empty body", uri)
		}
		return eris.Wrapf(err, "sf: decode %s", uri)
	}
	return nil
}

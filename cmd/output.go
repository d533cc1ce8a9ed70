package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/orgmap/internal/model"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode output")
	}
	return nil
}

// readBundle loads a metadata bundle exported by "discover --out".
func readBundle(path string) (*model.MetadataBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read bundle %s", path)
	}
	var b model.MetadataBundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, eris.Wrapf(err, "parse bundle %s", path)
	}
	return &b, nil
}

func writeBundle(path string, b *model.MetadataBundle) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode bundle")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "write bundle %s", path)
	}
	return nil
}

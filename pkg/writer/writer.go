// Package writer serializes feature collections to disk.
package writer

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/google/renameio/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/NERVsystems/stdownloader/pkg/core"
)

// FileMode is the permission of written collections
const FileMode os.FileMode = 0o644

// Encode returns the document Write would produce: the collection as UTF-8
// JSON indented with two spaces.
func Encode(fc *geojson.FeatureCollection) ([]byte, error) {
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fc); err != nil {
		return nil, core.NewError(core.ErrOutput, "failed to encode feature collection").Wrap(err)
	}

	return buf.Bytes(), nil
}

// Write encodes fc and replaces outputPath with it atomically. Either the
// complete document exists afterwards or nothing was written.
func Write(fc *geojson.FeatureCollection, outputPath string) error {
	data, err := Encode(fc)
	if err != nil {
		return err
	}

	if err := renameio.WriteFile(outputPath, data, FileMode); err != nil {
		return core.NewError(core.ErrOutput, "cannot write output file").
			WithPath(outputPath).
			WithGuidance("Check that the destination directory exists and is writable.").
			Wrap(err)
	}

	return nil
}

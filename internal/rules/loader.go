package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
)

// Load parses a JSON rule table from r. Sections absent from the document
// keep their built-in defaults, so a deployment can override only the
// alias list and inherit everything else.
func Load(r io.Reader) (*Table, error) {
	var loaded Table
	if err := json.NewDecoder(r).Decode(&loaded); err != nil {
		return nil, fmt.Errorf("Load: decoding rule table: %w", err)
	}

	base := Default()
	if len(loaded.Aliases) > 0 {
		base.Aliases = loaded.Aliases
	}
	if len(loaded.NoiseWords) > 0 {
		base.NoiseWords = loaded.NoiseWords
	}
	if len(loaded.LegalSuffixes) > 0 {
		base.LegalSuffixes = loaded.LegalSuffixes
	}
	if len(loaded.TokenPrefixes) > 0 {
		base.TokenPrefixes = loaded.TokenPrefixes
	}
	if len(loaded.NumericIDPrefixes) > 0 {
		base.NumericIDPrefixes = loaded.NumericIDPrefixes
	}
	base.compile()
	return base, nil
}

// LoadFile reads a rule table from a local JSON file.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("LoadFile: opening %s: %w", path, err)
	}
	defer f.Close()

	return Load(f)
}

// LoadGCS reads a rule table from a GCS object. uri must look like
// "gs://bucket/path/to/rules.json".
func LoadGCS(ctx context.Context, uri string) (*Table, error) {
	bucket, object, err := splitGCSURI(uri)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("LoadGCS: create storage client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("LoadGCS: open GCS object reader: %w", err)
	}
	defer r.Close()

	return Load(r)
}

// LoadURI dispatches to LoadGCS for gs:// URIs and LoadFile otherwise.
func LoadURI(ctx context.Context, uri string) (*Table, error) {
	if strings.HasPrefix(uri, "gs://") {
		return LoadGCS(ctx, uri)
	}
	return LoadFile(uri)
}

func splitGCSURI(uri string) (bucket, object string, err error) {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("splitGCSURI: malformed GCS URI %q", uri)
	}
	return parts[0], parts[1], nil
}

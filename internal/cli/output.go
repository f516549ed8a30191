package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bosocmputer/invoice_labeler/internal/reconcile"
	"github.com/goccy/go-yaml"
)

// Format is a reconcile output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHTML Format = "html"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatYAML, FormatHTML:
		return f, nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want json, yaml or html)", s)
	}
}

// WriteResult renders a reconcile result to w.
func WriteResult(w io.Writer, res reconcile.Result, format Format) error {
	switch format {
	case FormatHTML:
		_, err := io.WriteString(w, res.HTML+"\n"+res.OptionsHTML+"\n")
		return err
	case FormatYAML:
		// through JSON so the keys match the API response
		data, err := json.Marshal(res)
		if err != nil {
			return err
		}
		out, err := yaml.JSONToYAML(data)
		if err != nil {
			return fmt.Errorf("failed to convert to YAML: %w", err)
		}
		_, err = w.Write(out)
		return err
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
}

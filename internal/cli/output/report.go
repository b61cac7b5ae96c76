package output

import (
	"fmt"
	"io"
	"strings"
)

// Banner separates the sections of the text output.
var Banner = strings.Repeat("=", 56)

// Field writes one aligned "label : value" line.
func Field(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%-17s: %s \n", label, value)
}

// EncryptReport describes a completed encryption.
type EncryptReport struct {
	Backend     string `json:"backend" yaml:"backend"`
	Session     string `json:"session" yaml:"session"`
	Request     string `json:"request" yaml:"request"`
	Key         string `json:"key" yaml:"key"`
	KeySize     int    `json:"key_size" yaml:"key_size"`
	Input       string `json:"input" yaml:"input"`
	Output      string `json:"output" yaml:"output"`
	InputBytes  int    `json:"input_bytes" yaml:"input_bytes"`
	OutputBytes int    `json:"output_bytes" yaml:"output_bytes"`
	Status      string `json:"status" yaml:"status"`
}

// WriteText implements Texter.
func (r *EncryptReport) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Success\n")
	return err
}

// PublicKeyReport describes a key read from or provisioned on the element.
type PublicKeyReport struct {
	OID    string `json:"oid" yaml:"oid"`
	Bits   int    `json:"bits" yaml:"bits"`
	Output string `json:"output,omitempty" yaml:"output,omitempty"`
	PEM    string `json:"pem,omitempty" yaml:"pem,omitempty"`
}

// WriteText implements Texter.
func (r *PublicKeyReport) WriteText(w io.Writer) error {
	Field(w, "OID Key", r.OID)
	Field(w, "Key Size", fmt.Sprintf("%d", r.Bits))
	if r.Output != "" {
		Field(w, "Output File Name", r.Output)
		return nil
	}
	_, err := io.WriteString(w, r.PEM)
	return err
}

// ObjectReport is one row of an object listing.
type ObjectReport struct {
	OID  string `json:"oid" yaml:"oid"`
	Bits int    `json:"bits" yaml:"bits"`
}

// ObjectList lists provisioned key objects.
type ObjectList []ObjectReport

// WriteText implements Texter.
func (l ObjectList) WriteText(w io.Writer) error {
	t := NewTable("OID", "BITS")
	for _, o := range l {
		t.AddRow(o.OID, fmt.Sprintf("%d", o.Bits))
	}
	return t.Render(w)
}

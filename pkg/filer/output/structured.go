package output

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// document is the shape shared by the JSON and YAML formatters.
type document struct {
	Meta  documentMeta `json:"meta" yaml:"meta"`
	Files []FileInfo   `json:"files" yaml:"files"`
}

type documentMeta struct {
	Title      string   `json:"title,omitempty" yaml:"title,omitempty"`
	Source     string   `json:"source" yaml:"source"`
	TotalFiles int      `json:"total_files" yaml:"total_files"`
	TotalSize  int64    `json:"total_size" yaml:"total_size"`
	Warnings   []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func buildDocument(r *Result) document {
	files := r.Files
	if files == nil {
		files = []FileInfo{}
	}
	return document{
		Meta: documentMeta{
			Title:      r.Title,
			Source:     r.Source,
			TotalFiles: len(r.Files),
			TotalSize:  r.TotalSize(),
			Warnings:   r.Warnings,
		},
		Files: files,
	}
}

// JSONFormatter formats output as a single indented JSON object.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(buildDocument(r))
}

// YAMLFormatter formats output as YAML with the same structure as JSON.
type YAMLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *YAMLFormatter) Format(w *bytes.Buffer, r *Result) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(buildDocument(r)); err != nil {
		return err
	}
	return encoder.Close()
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
	Register("yaml", func() Formatter {
		return &YAMLFormatter{}
	})
}

var (
	_ Formatter = (*JSONFormatter)(nil)
	_ Formatter = (*YAMLFormatter)(nil)
)

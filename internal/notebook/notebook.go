// Package notebook reads nbformat v4 documents, picks the kernel a notebook runs on and
// executes notebooks through an external engine.
package notebook

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Notebook is the subset of an nbformat v4 document the runner needs.
type Notebook struct {
	Cells         []Cell   `json:"cells"`
	Metadata      Metadata `json:"metadata"`
	NBFormat      int      `json:"nbformat"`
	NBFormatMinor int      `json:"nbformat_minor"`
}

type Metadata struct {
	KernelSpec   *KernelSpecRef `json:"kernelspec,omitempty"`
	LanguageInfo *LanguageInfo  `json:"language_info,omitempty"`
}

// KernelSpecRef is the kernel a notebook was saved with.
type KernelSpecRef struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Language    string `json:"language,omitempty"`
}

type LanguageInfo struct {
	Name          string `json:"name"`
	FileExtension string `json:"file_extension,omitempty"`
	Version       string `json:"version,omitempty"`
}

type Cell struct {
	CellType       string          `json:"cell_type"`
	Source         MultilineString `json:"source"`
	ExecutionCount *int            `json:"execution_count,omitempty"`
	Outputs        []Output        `json:"outputs,omitempty"`
}

// Output is one entry of a code cell's outputs.
type Output struct {
	OutputType     string                     `json:"output_type"`
	Name           string                     `json:"name,omitempty"`
	Text           MultilineString            `json:"text,omitempty"`
	Data           map[string]json.RawMessage `json:"data,omitempty"`
	ExecutionCount *int                       `json:"execution_count,omitempty"`
	EName          string                     `json:"ename,omitempty"`
	EValue         string                     `json:"evalue,omitempty"`
	Traceback      []string                   `json:"traceback,omitempty"`
}

// MultilineString accepts both encodings nbformat allows: a string or a list of lines.
type MultilineString string

func (m *MultilineString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*m = MultilineString(s)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(b, &lines); err != nil {
		return fmt.Errorf("multiline string: %w", err)
	}
	*m = MultilineString(strings.Join(lines, ""))
	return nil
}

// MIME returns the value of a mime bundle entry when it is textual.
func (o Output) MIME(mime string) (string, bool) {
	raw, ok := o.Data[mime]
	if !ok {
		return "", false
	}
	var m MultilineString
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", false
	}
	return string(m), true
}

// KernelName is the kernel the notebook declares, or "" when it declares none.
func (nb *Notebook) KernelName() string {
	if nb.Metadata.KernelSpec == nil {
		return ""
	}
	return nb.Metadata.KernelSpec.Name
}

// Language is the declared kernel language, falling back to language_info.
func (nb *Notebook) Language() string {
	if ks := nb.Metadata.KernelSpec; ks != nil && ks.Language != "" {
		return ks.Language
	}
	if li := nb.Metadata.LanguageInfo; li != nil {
		return li.Name
	}
	return ""
}

// Parse decodes an nbformat v4 document.
func Parse(b []byte) (*Notebook, error) {
	var nb Notebook
	if err := json.Unmarshal(b, &nb); err != nil {
		return nil, fmt.Errorf("decode notebook: %w", err)
	}
	if nb.NBFormat != 0 && nb.NBFormat < 4 {
		return nil, fmt.Errorf("unsupported nbformat %d", nb.NBFormat)
	}
	return &nb, nil
}

// Read loads the notebook at path.
func Read(path string) (*Notebook, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read notebook: %w", err)
	}
	nb, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return nb, nil
}

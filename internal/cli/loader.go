package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/docsync/internal/config"
	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/markdown"
	"github.com/roach88/docsync/internal/schema"
)

// LoadError represents an error that occurred while loading an input file.
type LoadError struct {
	Code    string
	Message string
	Path    string
	Errors  []schema.ValidationError // set when a JSON document fails the block schema
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDocument reads a block list from path.
//
// Markdown files (.md, .markdown) are converted. JSON files must hold an
// array of block objects and are checked against the block schema first.
func LoadDocument(path string) ([]ir.Block, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: "file not found", Path: path}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error(), Path: path}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		blocks, err := markdown.Convert(data)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeParse, Message: fmt.Sprintf("convert markdown: %v", err), Path: path}
		}
		return blocks, nil
	case ".json":
		if errs := schema.Validate(data); len(errs) > 0 {
			return nil, &LoadError{
				Code:    errs[0].Code,
				Message: fmt.Sprintf("invalid block document: %s", errs[0].Error()),
				Path:    path,
				Errors:  errs,
			}
		}
		blocks, err := ir.DecodeBlocks(data)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeParse, Message: err.Error(), Path: path}
		}
		return blocks, nil
	default:
		return nil, &LoadError{
			Code:    ErrCodeParse,
			Message: "unsupported file type (want .md, .markdown or .json)",
			Path:    path,
		}
	}
}

// LoadConfig reads the config file named by --config, or the defaults
// when none is given.
func LoadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeConfig, Message: err.Error(), Path: opts.Config}
	}
	return cfg, nil
}

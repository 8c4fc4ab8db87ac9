package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/matrixrun/internal/config"
	"github.com/vk/matrixrun/internal/hclcfg"
	"github.com/vk/matrixrun/internal/yamlcfg"
)

// DefaultLoader picks the pipeline loader matching the given path: YAML for
// .yml/.yaml files, HCL for .hcl files and for directories (which may hold a
// pipeline split across several .hcl files).
func DefaultLoader(path string) (config.Loader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline path %s: %w", path, err)
	}
	if info.IsDir() {
		return hclcfg.NewLoader(), nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		return hclcfg.NewLoader(), nil
	case ".yml", ".yaml":
		return yamlcfg.NewLoader(), nil
	default:
		return nil, fmt.Errorf("unsupported pipeline format %q (want .hcl, .yml or .yaml)", filepath.Ext(path))
	}
}

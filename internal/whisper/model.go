package whisper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const DefaultModel = "small"

// Model is one ggml whisper.cpp model in the built-in catalog. SHA256 is
// pinned where a stable published digest is known; models without a pin are
// downloaded without verification.
type Model struct {
	Name      string
	FileName  string
	URL       string
	SHA256    string
	SizeLabel string
}

type ResolvedModel struct {
	Name          string
	Path          string
	URL           string
	SHA256        string
	NeedsDownload bool
	IsCustomPath  bool
}

const modelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

var registry = map[string]Model{
	"tiny": {
		Name:      "tiny",
		FileName:  "ggml-tiny.bin",
		URL:       modelBaseURL + "ggml-tiny.bin",
		SHA256:    "be07e048e1e599ad46341c8d2a135645097a538221678b7acdd1b1919c6e1b21",
		SizeLabel: "~75 MB",
	},
	"tiny.en": {
		Name:      "tiny.en",
		FileName:  "ggml-tiny.en.bin",
		URL:       modelBaseURL + "ggml-tiny.en.bin",
		SizeLabel: "~75 MB",
	},
	"base": {
		Name:      "base",
		FileName:  "ggml-base.bin",
		URL:       modelBaseURL + "ggml-base.bin",
		SHA256:    "60ed5bc3dd14eea856493d334349b405782ddcaf0028d4b5df4088345fba2efe",
		SizeLabel: "~142 MB",
	},
	"base.en": {
		Name:      "base.en",
		FileName:  "ggml-base.en.bin",
		URL:       modelBaseURL + "ggml-base.en.bin",
		SizeLabel: "~142 MB",
	},
	"small": {
		Name:      "small",
		FileName:  "ggml-small.bin",
		URL:       modelBaseURL + "ggml-small.bin",
		SHA256:    "1be3a9b2063867b937e64e2ec7483364a79917e157fa98c5d94b5c1fffea987b",
		SizeLabel: "~466 MB",
	},
	"small.en": {
		Name:      "small.en",
		FileName:  "ggml-small.en.bin",
		URL:       modelBaseURL + "ggml-small.en.bin",
		SizeLabel: "~466 MB",
	},
	"medium": {
		Name:      "medium",
		FileName:  "ggml-medium.bin",
		URL:       modelBaseURL + "ggml-medium.bin",
		SHA256:    "6c14d5adee5f86394037b4e4e8b59f1673b6cee10e3cf0b11bbdbee79c156208",
		SizeLabel: "~1.5 GB",
	},
	"medium.en": {
		Name:      "medium.en",
		FileName:  "ggml-medium.en.bin",
		URL:       modelBaseURL + "ggml-medium.en.bin",
		SizeLabel: "~1.5 GB",
	},
	"large-v2": {
		Name:      "large-v2",
		FileName:  "ggml-large-v2.bin",
		URL:       modelBaseURL + "ggml-large-v2.bin",
		SizeLabel: "~2.9 GB",
	},
	"large-v3": {
		Name:      "large-v3",
		FileName:  "ggml-large-v3.bin",
		URL:       modelBaseURL + "ggml-large-v3.bin",
		SHA256:    "64d182b440b98d5203c4f9bd541544d84c605196c4f7b845dfa11fb23594d1e2",
		SizeLabel: "~2.9 GB",
	},
	"large-v3-turbo": {
		Name:      "large-v3-turbo",
		FileName:  "ggml-large-v3-turbo.bin",
		URL:       modelBaseURL + "ggml-large-v3-turbo.bin",
		SizeLabel: "~1.6 GB",
	},
}

// ModelNames returns the catalog names sorted for stable listings and error
// messages. This set is the only accepted size selection besides an explicit
// model file path.
func ModelNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func LookupModel(name string) (Model, bool) {
	model, ok := registry[name]
	return model, ok
}

// ResolveModel maps a model reference (catalog name or file path) to a
// concrete model file under modelDir, reporting whether the weights still
// need to be downloaded.
func ResolveModel(modelRef, modelDir string) (ResolvedModel, error) {
	if strings.TrimSpace(modelRef) == "" {
		modelRef = DefaultModel
	}

	if model, ok := LookupModel(modelRef); ok {
		if strings.TrimSpace(modelDir) == "" {
			return ResolvedModel{}, errors.New("model directory must not be empty for named model")
		}

		modelPath := filepath.Join(modelDir, model.FileName)
		_, statErr := os.Stat(modelPath)
		needsDownload := errors.Is(statErr, os.ErrNotExist)
		if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
			return ResolvedModel{}, fmt.Errorf("stat model path: %w", statErr)
		}

		return ResolvedModel{
			Name:          model.Name,
			Path:          modelPath,
			URL:           model.URL,
			SHA256:        model.SHA256,
			NeedsDownload: needsDownload,
		}, nil
	}

	if !looksLikePath(modelRef) {
		return ResolvedModel{}, fmt.Errorf("unknown model %q (known models: %s)", modelRef, strings.Join(ModelNames(), ", "))
	}

	customPath := filepath.Clean(modelRef)
	if _, err := os.Stat(customPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ResolvedModel{}, fmt.Errorf("custom model path does not exist: %s", customPath)
		}
		return ResolvedModel{}, fmt.Errorf("stat custom model path: %w", err)
	}

	return ResolvedModel{
		Path:         customPath,
		IsCustomPath: true,
	}, nil
}

func looksLikePath(input string) bool {
	if strings.ContainsRune(input, os.PathSeparator) {
		return true
	}
	ext := strings.ToLower(filepath.Ext(input))
	return ext == ".bin" || ext == ".gguf"
}

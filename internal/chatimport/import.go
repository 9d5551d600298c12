package chatimport

import (
	"os"

	"memlayer/internal/memconfig"
	"memlayer/internal/memerrors"
)

// ImportFile reads a raw export file from path, detects its provider,
// normalizes it, and validates every conversation, honoring
// memconfig.GetConfig()'s max_file_size and max_conversations_per_file
// limits. Structurally invalid conversations are partitioned into invalid
// rather than failing the whole import.
func ImportFile(reg *Registry, path string) (valid []NormalizedConversation, invalid []InvalidConversation, err error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		return nil, nil, memerrors.Wrap(memerrors.KindValidation, statErr, "stat import file")
	}

	cfg := memconfig.GetConfig()
	if cfg.MaxFileSize > 0 && info.Size() > cfg.MaxFileSize {
		return nil, nil, memerrors.New(memerrors.KindFileTooLarge,
			"import file exceeds max_file_size")
	}

	raw, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, nil, memerrors.Wrap(memerrors.KindValidation, readErr, "read import file")
	}

	convs, parseErr := reg.Parse(raw)
	if parseErr != nil {
		return nil, nil, parseErr
	}

	if cfg.MaxConversationsPerFile > 0 && len(convs) > cfg.MaxConversationsPerFile {
		return nil, nil, memerrors.New(memerrors.KindTooManyConversations,
			"import file exceeds max_conversations_per_file")
	}

	result := NewValidator().ValidateBatch(convs)
	return result.Valid, result.Invalid, nil
}

package crypto

import (
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// Vault encrypts and decrypts typed data source configuration.
// The key is derived once at construction and not rotated here.
type Vault struct {
	enc *CredentialEncryptor
}

// NewVault creates a vault from the process-wide credentials secret.
func NewVault(secret string) (*Vault, error) {
	enc, err := NewCredentialEncryptor(secret)
	if err != nil {
		return nil, err
	}
	return &Vault{enc: enc}, nil
}

// EncryptConfig validates cfg for kind, serializes it and seals the result.
func (v *Vault) EncryptConfig(kind models.SourceKind, cfg models.SourceConfig) ([]byte, error) {
	plaintext, err := models.EncodeSourceConfig(kind, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidSourceConfig, err)
	}
	sealed, err := v.enc.Seal(plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypt %s config: %w", kind, err)
	}
	return sealed, nil
}

// DecryptConfig opens a sealed blob and decodes it into the config type for kind.
// A blob sealed under another key yields *apperrors.DecryptionError.
func (v *Vault) DecryptConfig(kind models.SourceKind, blob []byte) (models.SourceConfig, error) {
	plaintext, err := v.enc.Open(blob)
	if err != nil {
		if errors.Is(err, ErrDecryptionFailed) {
			return nil, &apperrors.DecryptionError{Err: err}
		}
		return nil, err
	}
	cfg, err := models.DecodeSourceConfig(kind, plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidSourceConfig, err)
	}
	return cfg, nil
}

// DecryptSource is DecryptConfig for a stored DataSource.
func (v *Vault) DecryptSource(src *models.DataSource) (models.SourceConfig, error) {
	return v.DecryptConfig(src.Kind, src.EncryptedConfig)
}

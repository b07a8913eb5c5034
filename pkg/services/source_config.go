package services

import (
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// decryptAs opens a source's config and asserts the type its kind implies.
func decryptAs[T models.SourceConfig](vault ConfigVault, src *models.DataSource) (T, error) {
	var zero T
	raw, err := vault.DecryptSource(src)
	if err != nil {
		return zero, err
	}
	cfg, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s source holds %T", apperrors.ErrInvalidSourceConfig, src.Kind, raw)
	}
	return cfg, nil
}

// configError turns a decrypt failure into the error surfaced to query callers.
func configError(err error) *apperrors.QueryExecutionError {
	var de *apperrors.DecryptionError
	if errors.As(err, &de) {
		return &apperrors.QueryExecutionError{
			Message: "stored credentials cannot be decrypted, re-enter the data source credentials",
			Err:     err,
		}
	}
	return &apperrors.QueryExecutionError{Message: "invalid data source configuration", Err: err}
}

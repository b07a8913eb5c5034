package sql

import (
	"fmt"
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
)

// InjectionCheckResult contains the result of an injection check on a parameter value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	ParamName   string
	ParamValue  any
}

// CheckParameterForInjection runs libinjection over a string parameter value.
// Non-string values cannot carry an injection payload and return nil.
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			ParamName:   paramName,
			ParamValue:  value,
		}
	}

	return nil
}

// CheckAllParameters screens every parameter and returns the findings ordered by name.
func CheckAllParameters(params map[string]any) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for name, value := range params {
		if result := CheckParameterForInjection(name, value); result != nil {
			results = append(results, result)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ParamName < results[j].ParamName })
	return results
}

// ScreenParameters returns an error wrapping apperrors.ErrSuspiciousParameter for the
// first flagged parameter, or nil. Parameters listed in skip are trusted and not screened.
func ScreenParameters(params map[string]any, skip ...string) error {
	filtered := params
	if len(skip) > 0 {
		filtered = make(map[string]any, len(params))
		for k, v := range params {
			filtered[k] = v
		}
		for _, k := range skip {
			delete(filtered, k)
		}
	}
	results := CheckAllParameters(filtered)
	if len(results) == 0 {
		return nil
	}
	return fmt.Errorf("%w: parameter %q (fingerprint %s)",
		apperrors.ErrSuspiciousParameter, results[0].ParamName, results[0].Fingerprint)
}

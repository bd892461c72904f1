package pipeline

import (
	"fmt"

	"github.com/jn-run/jn/internal/jnerrors"
)

func pipelineValidationError(format string, args ...interface{}) error {
	return &jnerrors.PipelineValidationError{Reason: fmt.Sprintf(format, args...)}
}

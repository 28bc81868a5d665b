package s3backup

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// isNotFound reconoce el 404 de S3 y de los proveedores compatibles.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var httpErr interface{ HTTPStatusCode() int }
	return errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == 404
}
